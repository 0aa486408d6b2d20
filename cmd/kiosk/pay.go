package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"booth-kiosk/internal/api"
	"booth-kiosk/internal/auth"
	"booth-kiosk/internal/cart"
	"booth-kiosk/internal/channel"
	"booth-kiosk/internal/config"
	"booth-kiosk/internal/db"
	"booth-kiosk/internal/journal"
	"booth-kiosk/internal/logger"
	"booth-kiosk/internal/loop"
	"booth-kiosk/internal/metrics"
	"booth-kiosk/internal/notify"
	"booth-kiosk/internal/order"
	"booth-kiosk/internal/payment"
	"booth-kiosk/internal/session"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	errBadItem       = errors.New("item must look like id:price[:qty]")
	errBadStock      = errors.New("stock must look like id:count")
	errUnknownMethod = errors.New("method must be qr or student")
	errNotPaid       = errors.New("payment did not complete")
)

type payOptions struct {
	items   []string
	stock   []string
	method  string
	student string
	retries int
}

func newPayCmd() *cobra.Command {
	opts := &payOptions{}

	cmd := &cobra.Command{
		Use:   "pay",
		Short: "Place an order for a cart and take payment for it",
		Long: `pay creates the order, starts a payment request with the chosen method
and waits for the outcome. A failed request is retried up to --retries times,
after that the order is cancelled. Ctrl+C cancels the order.`,
		Example: `  kiosk pay --item juice:1000:2 --item bread:500:3 --method qr
  kiosk pay --item juice:1000 --method student --student 2314`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			logger.Init(cfg.AppEnv)
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runPay(ctx, cfg, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringArrayVar(&opts.items, "item", nil, "cart line as id:price[:qty], repeatable")
	cmd.Flags().StringArrayVar(&opts.stock, "stock", nil, "available stock as id:count, repeatable")
	cmd.Flags().StringVar(&opts.method, "method", "qr", "payment method: qr or student")
	cmd.Flags().StringVar(&opts.student, "student", "", "4-digit student id for --method student")
	cmd.Flags().IntVar(&opts.retries, "retries", 0, "times to retry a failed payment request before cancelling")
	_ = cmd.MarkFlagRequired("item")
	return cmd
}

func runPay(ctx context.Context, cfg *config.Config, opts *payOptions, out io.Writer) error {
	method, err := parseMethod(opts.method)
	if err != nil {
		return err
	}
	if method == payment.MethodIdentifier {
		if _, err := payment.ParseStudentID(opts.student); err != nil {
			return fmt.Errorf("invalid student id %q: %w", opts.student, err)
		}
	}

	basket, err := parseItems(opts.items)
	if err != nil {
		return err
	}
	if len(opts.stock) > 0 {
		stock, err := parseStock(opts.stock)
		if err != nil {
			return err
		}
		if err := cart.CheckStock(basket, stock); err != nil {
			return err
		}
	}
	store := cart.NewMemoryStore(basket)

	client, tokens, err := newClient(cfg)
	if err != nil {
		return err
	}

	ord, err := order.NewService(client).Place(ctx, store.Snapshot())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "order %s: %d items, total %s\n", ord.ID, ord.ItemCount(), payment.FormatAmount(ord.Total()))

	var recorder session.Recorder
	if cfg.JournalDSN != "" {
		conn, err := db.NewDatabase(cfg.JournalDSN)
		if err != nil {
			logger.L().Warn("payment journal unavailable", zap.Error(err))
		} else {
			defer conn.Close()
			recorder = journal.NewRepository(conn)
		}
	}

	l := loop.New()
	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()
	go l.Run(loopCtx)

	registry := metrics.NewRegistry()
	chanOpts := []channel.Option{
		channel.WithMetrics(registry),
		channel.WithPolicy(channel.Policy{
			BaseDelay:   cfg.Reconnect.BaseDelay,
			MaxDelay:    cfg.Reconnect.MaxDelay,
			MaxAttempts: cfg.Reconnect.MaxAttempts,
		}),
	}
	if tokens != nil {
		chanOpts = append(chanOpts, channel.WithTokenSource(tokens))
	}

	term := newTerminal(out)
	watch := &recovery{out: out, student: opts.student, left: opts.retries}
	sess, err := session.New(session.Deps{
		Loop:        l,
		Backend:     client,
		Navigator:   term,
		Notifier:    notify.New(l, term, cfg.NotifyDuration),
		Cart:        store,
		Channel:     session.PushChannel(client.BaseURL().String(), chanOpts...),
		Journal:     recorder,
		Metrics:     registry,
		CallTimeout: cfg.HTTPTimeout,
		OnChange: func(v session.View) {
			term.render(v)
			watch.observe(v)
		},
	}, ord)
	if err != nil {
		return err
	}
	watch.sess = sess

	if err := sess.SelectMethod(method); err != nil {
		return err
	}
	if method == payment.MethodIdentifier {
		if err := sess.SubmitIdentifier(opts.student); err != nil {
			return err
		}
	}

	select {
	case <-sess.Done():
	case <-ctx.Done():
		fmt.Fprintln(out, "cancelling order...")
		_ = sess.Cancel()
		select {
		case <-sess.Done():
		case <-time.After(cfg.HTTPTimeout + time.Second):
			if err := sess.Exit(); err == nil {
				<-sess.Done()
			}
		}
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPTimeout)
	defer cancel()
	if err := sess.Flush(flushCtx); err != nil {
		logger.L().Warn("journal writes did not finish", zap.Error(err))
	}

	view, err := sess.Snapshot(flushCtx)
	if err != nil {
		return err
	}
	logMetrics(registry)

	if watch.gaveUp != "" {
		return fmt.Errorf("%w: %s", errNotPaid, watch.gaveUp)
	}
	if view.State != session.StateCompleted {
		return fmt.Errorf("%w: %s", errNotPaid, view.State)
	}
	fmt.Fprintf(out, "paid: order %s\n", ord.ID)
	return nil
}

// recovery reacts to failed payment requests: it retries while the budget
// lasts and then cancels the order. It runs on the loop.
type recovery struct {
	sess    *session.Coordinator
	out     io.Writer
	student string
	left    int
	last    session.State
	gaveUp  session.State
}

func (r *recovery) observe(v session.View) {
	if v.State == r.last {
		return
	}
	r.last = v.State
	if v.State != session.StateCreateFailed && v.State != session.StateFailed {
		return
	}
	// order-level refusals have already closed the session
	if v.State == session.StateCreateFailed && payment.OrderLevel(v.ErrorCode) {
		return
	}

	if r.left > 0 {
		r.left--
		fmt.Fprintf(r.out, "retrying payment (%d left)\n", r.left)
		_ = r.sess.Retry()
		if v.SelectedMethod == payment.MethodIdentifier {
			_ = r.sess.SubmitIdentifier(r.student)
		}
		return
	}
	r.gaveUp = v.State
	fmt.Fprintln(r.out, "giving up; cancelling order...")
	_ = r.sess.Cancel()
}

func newClient(cfg *config.Config) (*api.Client, auth.TokenSource, error) {
	opts := []api.Option{
		api.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout, Transport: &logger.Transport{}}),
		api.WithRateLimit(cfg.APIRateLimit, cfg.APIRateBurst),
	}

	var tokens auth.TokenSource
	if cfg.KioskToken != "" {
		tokens = auth.StaticToken(cfg.KioskToken)
		opts = append(opts, api.WithTokenSource(tokens))

		if claims, err := auth.ParseBoothClaims(cfg.KioskToken); err != nil {
			logger.L().Warn("kiosk token is not readable", zap.Error(err))
		} else if claims.Expired(time.Now()) {
			logger.L().Warn("kiosk token has expired", zap.String("booth_id", claims.BoothID))
		}
	}

	client, err := api.NewClient(cfg.APIBaseURL, opts...)
	if err != nil {
		return nil, nil, err
	}
	return client, tokens, nil
}

func logMetrics(r *metrics.Registry) {
	snap := r.Snapshot()
	fields := make([]zap.Field, 0, len(snap))
	for _, name := range r.Names() {
		fields = append(fields, zap.Uint64(name, snap[name]))
	}
	logger.L().Info("session metrics", fields...)
}

func parseMethod(s string) (payment.Method, error) {
	switch strings.ToLower(s) {
	case "qr", string(payment.MethodCodeScan):
		return payment.MethodCodeScan, nil
	case "student", string(payment.MethodIdentifier):
		return payment.MethodIdentifier, nil
	}
	return payment.MethodNone, fmt.Errorf("%w: %q", errUnknownMethod, s)
}

// parseItems builds a cart from id:price[:qty] specs. Repeated ids add up.
func parseItems(specs []string) (cart.Cart, error) {
	c := cart.New()
	for _, spec := range specs {
		parts := strings.Split(spec, ":")
		if len(parts) < 2 || len(parts) > 3 || parts[0] == "" {
			return cart.Cart{}, fmt.Errorf("%w: %q", errBadItem, spec)
		}

		price, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || price < 0 {
			return cart.Cart{}, fmt.Errorf("%w: %q", errBadItem, spec)
		}
		qty := 1
		if len(parts) == 3 {
			qty, err = strconv.Atoi(parts[2])
			if err != nil || qty < 1 {
				return cart.Cart{}, fmt.Errorf("%w: %q", errBadItem, spec)
			}
		}

		id := parts[0]
		c = c.Add(cart.Product{ID: id, Name: id, Price: price})
		c = c.SetQuantity(id, c.Quantity(id)+qty-1)
	}
	return c, nil
}

func parseStock(specs []string) (map[string]int, error) {
	stock := make(map[string]int, len(specs))
	for _, spec := range specs {
		id, count, ok := strings.Cut(spec, ":")
		n, err := strconv.Atoi(count)
		if !ok || id == "" || err != nil || n < 0 {
			return nil, fmt.Errorf("%w: %q", errBadStock, spec)
		}
		stock[id] = n
	}
	return stock, nil
}
