package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSniffDelimiter(t *testing.T) {
	cases := []struct {
		name   string
		sample string
		want   rune
	}{
		{"comma", "a,b,c\n1,2,3\n4,5,6\n", ','},
		{"semicolon", "a;b;c\n1;2;3\n", ';'},
		{"tab", "a\tb\tc\n1\t2\t3\n", '\t'},
		{"pipe", "a|b\n1|2\n", '|'},
		{"quoted commas inside semicolon file", "a;b\n\"x,y\";2\n\"p,q\";3\n", ';'},
		{"truncated last line is ignored", "a,b,c\n1,2,3\n4,5", ','},
		{"crlf", "a,b\r\n1,2\r\n", ','},
		{"bom", "\ufeffa;b\n1;2\n", ';'},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := SniffDelimiter([]byte(tc.sample))
			require.NoError(t, err)
			assert.Equal(t, string(tc.want), string(got))
		})
	}
}

func TestSniffDelimiterFailsWithoutDelimiter(t *testing.T) {
	_, err := SniffDelimiter([]byte("model_name\ntf2\n"))
	assert.ErrorIs(t, err, ErrUnknownDialect)

	_, err = SniffDelimiter([]byte("\n\n"))
	assert.ErrorIs(t, err, ErrUnknownDialect)
}
