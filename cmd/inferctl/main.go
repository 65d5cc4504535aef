package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/docopt/docopt-go"
	"go.uber.org/zap"

	"github.com/unkn0wn-root/inferkit"
	"github.com/unkn0wn-root/inferkit/config"
	"github.com/unkn0wn-root/inferkit/generate"
	"github.com/unkn0wn-root/inferkit/selection"
	"github.com/unkn0wn-root/inferkit/transport"
)

const InferctlVersion = "0.1.0"

const usage = `Inference API client.

Usage:
    inferctl get [options] <key>
    inferctl post [options] <key> <json>
    inferctl put [options] <key> <json>
    inferctl delete [options] <key> [<id>]
    inferctl generate [options] [--start-with=<text>] [--max-tokens=<n>] [--default-sampling] <prompt>
    inferctl chat [options] [--id=<chat_id>] <message>
    inferctl model [options] [<name> | --clear]
    inferctl watch [options] [--interval=<d>] <key>...
    inferctl -h | --help
    inferctl --version

Options:
    -h --help               Show this screen.
    --version               Show version.
    --config=<path>         Config file (.toml, .yaml, .json, .hujson).
    --base-url=<url>        Override api.base_url.
    --verbose               Log at debug level.
    --start-with=<text>     Seed the output.
    --max-tokens=<n>        Token limit.
    --default-sampling      Send the default sampling parameters.
    --id=<chat_id>          Continue an existing chat.
    --clear                 Clear the selected model.
    --interval=<d>          Refetch interval for watch [default: 5s].`

type app struct {
	cfg    *config.Config
	logs   *logging
	log    *zap.Logger
	tr     *transport.HTTP
	client *inferkit.Client
	sel    *selection.Selection
}

func main() {
	opts, err := docopt.ParseArgs(usage, os.Args[1:], InferctlVersion)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx, opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, "inferctl:", err)
		os.Exit(1)
	}
	defer a.close()

	if err := a.run(ctx, opts); err != nil {
		a.log.Error("command failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, "inferctl:", err)
		a.close()
		os.Exit(1)
	}
}

func setup(ctx context.Context, opts docopt.Opts) (*app, error) {
	path, _ := opts.String("--config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if u, _ := opts.String("--base-url"); u != "" {
		cfg.API.BaseURL = u
	}
	if v, _ := opts.Bool("--verbose"); v {
		cfg.Log.Level = "debug"
	}

	logs, err := newLogging(cfg.Log, os.Stderr)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logs: logs, log: logs.zl}

	tc := cfg.Transport()
	tc.UserAgent = coalesce(tc.UserAgent, "inferctl/"+InferctlVersion)
	if a.tr, err = transport.New(tc); err != nil {
		return nil, err
	}

	co, err := cfg.ClientOptions(a.tr)
	if err != nil {
		return nil, err
	}
	co.Logger = logs.logger("cache")
	co.Hooks = logs.hooks
	if a.client, err = inferkit.New(co); err != nil {
		return nil, err
	}

	store, err := selection.OpenProvider(ctx, cfg.SelectionBackend())
	if err != nil {
		return nil, err
	}
	a.sel = selection.New(selection.Options{
		Provider: store,
		Key:      cfg.Selection.Key,
		Logger:   logs.logger("selection"),
		Hooks:    logs.hooks,
	})
	if err := a.sel.Load(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if a.client != nil {
		_ = a.client.Close(ctx)
	}
	if a.sel != nil {
		_ = a.sel.Close(ctx)
	}
	a.logs.close()
}

func (a *app) run(ctx context.Context, opts docopt.Opts) error {
	key, _ := opts.String("<key>")
	switch {
	case flag(opts, "get"):
		return a.get(ctx, key)
	case flag(opts, "post"), flag(opts, "put"):
		body, _ := opts.String("<json>")
		return a.write(ctx, key, body, flag(opts, "put"))
	case flag(opts, "delete"):
		id, _ := opts.String("<id>")
		return a.del(ctx, key, id)
	case flag(opts, "generate"):
		return a.generate(ctx, opts)
	case flag(opts, "chat"):
		return a.chat(ctx, opts)
	case flag(opts, "model"):
		return a.model(ctx, opts)
	case flag(opts, "watch"):
		return a.watch(ctx, opts)
	}
	return fmt.Errorf("no command")
}

func flag(opts docopt.Opts, name string) bool {
	v, _ := opts.Bool(name)
	return v
}

func coalesce(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) get(ctx context.Context, key string) error {
	h, err := inferkit.Acquire[any](a.client, key)
	if err != nil {
		return err
	}
	defer h.Release()
	if err := h.Refetch(ctx); err != nil {
		return err
	}
	v, _ := h.Data()
	return printJSON(v)
}

func (a *app) write(ctx context.Context, key, body string, put bool) error {
	if !json.Valid([]byte(body)) {
		return fmt.Errorf("body is not valid JSON")
	}
	h, err := inferkit.Acquire[any](a.client, key)
	if err != nil {
		return err
	}
	defer h.Release()

	var res inferkit.Result
	if put {
		res, err = h.Put(ctx, json.RawMessage(body))
	} else {
		res, err = h.Post(ctx, json.RawMessage(body))
	}
	if err != nil {
		return err
	}
	if res.Empty() {
		return nil
	}
	var out any
	if err := res.Decode(&out); err != nil {
		return err
	}
	return printJSON(out)
}

func (a *app) del(ctx context.Context, key, id string) error {
	h, err := inferkit.Acquire[any](a.client, key)
	if err != nil {
		return err
	}
	defer h.Release()
	return h.Delete(ctx, id)
}

func (a *app) session() *generate.Session {
	return generate.NewSession(a.tr, a.sel, generate.SessionOptions{
		GeneratePath: a.cfg.API.GeneratePath,
		Logger:       a.logs.logger("generate"),
		Hooks:        a.logs.hooks,
	})
}

// stream runs one generation, echoing output to stdout as it arrives.
func (a *app) stream(ctx context.Context, s *generate.Session, o generate.Options) (string, error) {
	printed := 0
	unsub := s.SubscribeResult(func(v string) {
		if len(v) > printed {
			fmt.Print(v[printed:])
		}
		printed = len(v)
	})
	defer unsub()

	out, err := s.Generate(ctx, o)
	fmt.Println()
	return out, err
}

func (a *app) generate(ctx context.Context, opts docopt.Opts) error {
	o := generate.Options{}
	o.Prompt, _ = opts.String("<prompt>")
	o.StartWith, _ = opts.String("--start-with")
	if s, _ := opts.String("--max-tokens"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("--max-tokens: %w", err)
		}
		o.MaxTokens = n
	}
	if flag(opts, "--default-sampling") {
		o.Sampling = generate.DefaultSampling()
	}
	_, err := a.stream(ctx, a.session(), o)
	return err
}

// chat appends a user message to a stored chat, generates the assistant
// reply and stores it too. Without --id a new chat is created first.
func (a *app) chat(ctx context.Context, opts docopt.Opts) error {
	id, _ := opts.String("--id")
	text, _ := opts.String("<message>")

	if id == "" {
		chats, err := inferkit.Acquire[any](a.client, "chat")
		if err != nil {
			return err
		}
		res, err := chats.Post(ctx, map[string]string{"name": "New chat " + time.Now().Format("2006-01-02")})
		chats.Release()
		if err != nil {
			return err
		}
		var created struct {
			ID json.Number `json:"id"`
		}
		if err := res.Decode(&created); err != nil {
			return fmt.Errorf("decode new chat: %w", err)
		}
		id = created.ID.String()
		a.log.Info("chat created", zap.String("id", id))
	}

	msgs, err := inferkit.Acquire[[]generate.ChatMessage](a.client, "chat/"+id+"/messages")
	if err != nil {
		return err
	}
	defer msgs.Release()
	if err := msgs.Refetch(ctx); err != nil {
		return err
	}

	user := generate.ChatMessage{Role: "user", Content: text}
	if _, err := msgs.Post(ctx, user); err != nil {
		return err
	}

	history, _ := msgs.Data()
	if n := len(history); n == 0 || history[n-1] != user {
		history = append(history, user)
	}
	prompt := generate.SerializeChat("", append(history, generate.ChatMessage{Role: "assistant"}))

	sampling := generate.DefaultSampling()
	sampling.Stop = generate.ChatStop()
	reply, err := a.stream(ctx, a.session(), generate.Options{Prompt: prompt, Sampling: sampling})
	if err != nil {
		return err
	}
	_, err = msgs.Post(ctx, generate.ChatMessage{Role: "assistant", Content: strings.TrimSpace(reply)})
	return err
}

func (a *app) model(ctx context.Context, opts docopt.Opts) error {
	if flag(opts, "--clear") {
		return a.sel.Clear(ctx)
	}
	if name, _ := opts.String("<name>"); name != "" {
		return a.sel.Set(ctx, name)
	}
	if m, ok := a.sel.Selected(); ok {
		fmt.Println(m)
		return nil
	}
	fmt.Println("(no model selected)")
	return nil
}

// watch keeps the given keys live, refetching on an interval and printing
// every state change, until interrupted. With --config, edits to the file
// adjust the log level.
func (a *app) watch(ctx context.Context, opts docopt.Opts) error {
	keys, _ := opts["<key>"].([]string)
	every := 5 * time.Second
	if s, _ := opts.String("--interval"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("--interval: %w", err)
		}
		every = d
	}

	var handles []*inferkit.Handle[any]
	for _, k := range keys {
		h, err := inferkit.Use[any](a.client, k)
		if err != nil {
			return err
		}
		defer h.Release()
		key := k
		unsub := h.Subscribe(func(s inferkit.State[any]) {
			switch {
			case s.Err != nil:
				fmt.Printf("%s: error: %v\n", key, s.Err)
			case s.Loading:
			default:
				b, _ := json.Marshal(s.Data)
				fmt.Printf("%s: %s\n", key, b)
			}
		})
		defer unsub()
		handles = append(handles, h)
	}

	if path, _ := opts.String("--config"); path != "" {
		go func() {
			err := config.Watch(ctx, path, func(c *config.Config, err error) {
				if err != nil {
					a.log.Warn("config reload failed", zap.Error(err))
					return
				}
				if err := a.logs.setLevel(c.Log.Level); err == nil {
					a.log.Info("config reloaded", zap.String("log_level", c.Log.Level))
				}
			})
			if err != nil && ctx.Err() == nil {
				a.log.Warn("config watch stopped", zap.Error(err))
			}
		}()
	}

	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			for _, h := range handles {
				if err := h.Refetch(ctx); err != nil && ctx.Err() == nil {
					a.log.Debug("refetch failed", zap.String("key", h.Key()), zap.Error(err))
				}
			}
		}
	}
}
