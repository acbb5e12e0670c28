// Package main 生成接口的命令行客户端：提交描述并逐条打印推送事件
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"sitegen-ai-api/internal/interfaces/sse"
)

type options struct {
	baseURL     string
	userID      string
	plan        string
	token       string
	model       string
	operation   string
	safetyLevel string
	htmlOnly    bool
}

func main() {
	_ = godotenv.Load()

	var opts options
	pflag.StringVar(&opts.baseURL, "url", envOr("SITEGEN_URL", "http://localhost:8080"), "api base url")
	pflag.StringVarP(&opts.userID, "user", "u", envOr("SITEGEN_USER", ""), "user id (X-User-ID)")
	pflag.StringVar(&opts.plan, "plan", "", "plan header (X-User-Plan)")
	pflag.StringVar(&opts.token, "token", envOr("SITEGEN_TOKEN", ""), "bearer token")
	pflag.StringVarP(&opts.model, "model", "m", "auto", "model: auto | gpt-4o | gpt-4o-mini | gemini-1.5-pro | gemini-1.5-flash")
	pflag.StringVarP(&opts.operation, "operation", "o", "", "operation, default generatePage")
	pflag.StringVar(&opts.safetyLevel, "safety", "", "safety level: strict | moderate | minimal")
	pflag.BoolVar(&opts.htmlOnly, "html", false, "print only the generated markup")
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: sitegen-cli [flags] <description>\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if pflag.NArg() == 0 {
		pflag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, pflag.Arg(0), os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "sitegen-cli: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, description string, out io.Writer) error {
	body, err := json.Marshal(map[string]string{
		"description": description,
		"userId":      opts.userID,
		"model":       opts.model,
		"operation":   opts.operation,
		"safetyLevel": opts.safetyLevel,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, opts.baseURL+"/v1/sites/generate", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if opts.userID != "" {
		req.Header.Set("X-User-ID", opts.userID)
	}
	if opts.plan != "" {
		req.Header.Set("X-User-Plan", opts.plan)
	}
	if opts.token != "" {
		req.Header.Set("Authorization", "Bearer "+opts.token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	return consume(resp.Body, out, opts.htmlOnly)
}

// consume 读取推送流直到结束，结束时补发 end 事件
func consume(r io.Reader, out io.Writer, htmlOnly bool) error {
	parser := sse.NewParser()
	emit := func(events []sse.Event) {
		for _, ev := range events {
			printEvent(out, ev, htmlOnly)
		}
	}

	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			emit(parser.Feed(string(buf[:n])))
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			emit(parser.Flush())
			return err
		}
	}
	emit(parser.Flush())
	printEvent(out, sse.Event{Type: sse.EndEventType}, htmlOnly)
	return nil
}

func printEvent(out io.Writer, ev sse.Event, htmlOnly bool) {
	if htmlOnly {
		if ev.Type == sse.DataEventType {
			fmt.Fprint(out, ev.Data)
		}
		if ev.Type == sse.EndEventType {
			fmt.Fprintln(out)
		}
		return
	}
	if ev.Data == "" {
		fmt.Fprintf(out, "[%s]\n", ev.Type)
		return
	}
	fmt.Fprintf(out, "[%s] %s\n", ev.Type, ev.Data)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
