package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/emandor/lemme_search/internal/matcher"
	"github.com/emandor/lemme_search/internal/model"
)

func TestClassify(t *testing.T) {
	var syntaxErr error = &json.SyntaxError{}
	tests := []struct {
		name string
		err  error
		want model.ErrorKind
	}{
		{"config", &ConfigError{Err: errors.New("missing token")}, model.ErrConfig},
		{"no match", fmt.Errorf("reconcile: %w", matcher.ErrNoMatch), model.ErrMatch},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), model.ErrNetwork},
		{"dial", &net.OpError{Op: "dial", Err: errors.New("refused")}, model.ErrNetwork},
		{"status", &StatusError{Code: 500}, model.ErrAPI},
		{"api", apiErrorf("未找到答案"), model.ErrAPI},
		{"decode", syntaxErr, model.ErrAPI},
		{"other", errors.New("???"), model.ErrUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
	assert.Equal(t, model.ErrorKind(""), Classify(nil))
}

func TestStatusErrorKeepsRunesWhole(t *testing.T) {
	// 3-byte runes: byte 200 falls inside the 67th rune
	body := strings.Repeat("题", 100)
	msg := (&StatusError{Code: 502, Body: body}).Error()

	assert.True(t, utf8.ValidString(msg))
	assert.Equal(t, "http 502: "+strings.Repeat("题", 66)+"…", msg)
	assert.Equal(t, "短", truncate("短", 200))
}
