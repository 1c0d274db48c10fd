package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/emandor/lemme_search/internal/config"
	"github.com/emandor/lemme_search/internal/model"
)

type askFlags struct {
	content   string
	options   []string
	qtype     int
	providers []string
	sets      []string
}

func NewAskCmd() *cobra.Command {
	var f askFlags

	cmd := &cobra.Command{
		Use:   "ask",
		Short: "Answer one question through cache, providers and the vote",
		Example: `  lemme_search ask --content "中国的首都是" --option 北京 --option 上海 --provider OPENAI
  lemme_search ask --content "地球是圆的" --type 3 --provider 言溪题库 --set 言溪题库.token=xxx`,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, reqs, err := f.build()
			if err != nil {
				return err
			}
			a, err := Build(config.Load())
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			report := a.Search.Search(ctx, "cli-"+uuid.NewString(), q, a.Search.Providers(reqs, nil))

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetEscapeHTML(false)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}

	cmd.Flags().StringVarP(&f.content, "content", "c", "", "question text")
	cmd.Flags().StringArrayVarP(&f.options, "option", "o", nil, "an option, repeat in order")
	cmd.Flags().IntVarP(&f.qtype, "type", "t", 0, "0 single, 1 multi, 2 fill blank, 3 true/false, 4 open")
	cmd.Flags().StringArrayVarP(&f.providers, "provider", "p", nil, "provider name, repeatable")
	cmd.Flags().StringArrayVar(&f.sets, "set", nil, "provider config as <provider>.<key>=<value>")
	_ = cmd.MarkFlagRequired("content")
	return cmd
}

func (f askFlags) build() (model.Query, []model.ProviderRequest, error) {
	q := model.Query{Content: strings.TrimSpace(f.content), Options: f.options, Type: model.QuestionType(f.qtype)}
	if q.Content == "" {
		return q, nil, errors.New("--content is required")
	}
	if !q.Type.Valid() {
		return q, nil, fmt.Errorf("--type %d out of range", f.qtype)
	}
	if len(f.providers) == 0 {
		return q, nil, errors.New("at least one --provider is required")
	}

	configs := map[string]map[string]any{}
	for _, s := range f.sets {
		name, kv, ok := strings.Cut(s, ".")
		key, value, ok2 := strings.Cut(kv, "=")
		if !ok || !ok2 || name == "" || key == "" {
			return q, nil, fmt.Errorf("bad --set %q, want <provider>.<key>=<value>", s)
		}
		if configs[name] == nil {
			configs[name] = map[string]any{}
		}
		configs[name][key] = value
	}

	reqs := make([]model.ProviderRequest, 0, len(f.providers))
	for _, p := range f.providers {
		reqs = append(reqs, model.ProviderRequest{Name: p, Config: configs[p]})
	}
	return q, reqs, nil
}
