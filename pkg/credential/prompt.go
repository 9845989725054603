package credential

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// TerminalPrompter は端末からキーを読み取ります。端末の場合は入力を表示しません。
type TerminalPrompter struct {
	In  *os.File
	Out io.Writer
}

// NewTerminalPrompter は標準入力・標準エラー出力を使う TerminalPrompter を返します。
func NewTerminalPrompter() *TerminalPrompter {
	return &TerminalPrompter{In: os.Stdin, Out: os.Stderr}
}

// PromptAPIKey はキーを1行読み取ります。
func (t *TerminalPrompter) PromptAPIKey(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fmt.Fprint(t.Out, "Gemini API key: ")
	fd := int(t.In.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(t.Out)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := bufio.NewReader(t.In).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
