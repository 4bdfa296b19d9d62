package agent

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// InputMode 控制 agent 何时征询人工输入。
type InputMode string

const (
	// InputModeAlways 每次生成回复前都先问人。
	InputModeAlways InputMode = "ALWAYS"
	// InputModeNever 从不问人,完全自动。
	InputModeNever InputMode = "NEVER"
	// InputModeTerminate 只在命中终止条件或连续自动回复达到上限时问人。
	InputModeTerminate InputMode = "TERMINATE"
)

// HumanInputProvider 是人工输入源。
// ReadInput 展示提示并阻塞等待一行输入,context 取消时立即返回。
type HumanInputProvider interface {
	ReadInput(ctx context.Context, prompt string) (string, error)
}

// ConsoleInput 从终端读取人工输入。
type ConsoleInput struct {
	in  io.Reader
	out io.Writer

	mu     sync.Mutex
	reader *bufio.Reader
}

// ConsoleInputOption 配置 ConsoleInput。
type ConsoleInputOption func(*ConsoleInput)

// WithConsoleStreams 重定向输入输出流,测试时替换 os.Stdin/os.Stdout。
func WithConsoleStreams(in io.Reader, out io.Writer) ConsoleInputOption {
	return func(c *ConsoleInput) {
		c.in = in
		c.out = out
	}
}

// NewConsoleInput 创建终端输入源,默认读 os.Stdin、写 os.Stdout。
func NewConsoleInput(opts ...ConsoleInputOption) *ConsoleInput {
	c := &ConsoleInput{in: os.Stdin, out: os.Stdout}
	for _, opt := range opts {
		opt(c)
	}
	c.reader = bufio.NewReader(c.in)
	return c
}

// ReadInput 输出提示后读取一行。读取在独立 goroutine 中进行,
// 以便 context 取消时不再等待终端。
func (c *ConsoleInput) ReadInput(ctx context.Context, prompt string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if prompt != "" {
		fmt.Fprint(c.out, prompt)
	}

	type lineResult struct {
		text string
		err  error
	}
	ch := make(chan lineResult, 1)
	go func() {
		line, err := c.reader.ReadString('\n')
		ch <- lineResult{text: line, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.err != nil && res.err != io.EOF {
			return "", res.err
		}
		return strings.TrimSpace(res.text), nil
	}
}
