// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command natscat is a small publish/subscribe/request exerciser for a
// natscore.Conn, the way a teammate reaches for a throwaway CLI to poke a
// wire protocol by hand instead of writing a one-off test.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	_ "go.uber.org/automaxprocs"
	"golang.org/x/time/rate"

	"code.hybscloud.com/natscore"
)

func main() {
	var (
		server    = flag.String("server", natscore.DefaultURL, "NATS server host:port")
		subject   = flag.String("subject", "", "subject to publish or subscribe to")
		mode      = flag.String("mode", "sub", "sub|pub|request")
		name      = flag.String("name", "natscat", "connection name sent in CONNECT")
		rateLimit = flag.Float64("rate", 0, "cap outbound publishes per second (0 disables)")
		verbose   = flag.Bool("verbose", false, "log every delivered message")
	)
	flag.Parse()

	if *subject == "" {
		fmt.Fprintln(os.Stderr, "natscat: -subject is required")
		os.Exit(2)
	}

	logger := log.New(os.Stderr, "[natscat] ", log.LstdFlags)
	logger.Printf("GOMAXPROCS: %d (via automaxprocs)", runtime.GOMAXPROCS(0))

	conn := natscore.New(
		natscore.WithServer(*server),
		natscore.WithName(*name),
		natscore.WithStatusChangedHandler(func(_ *natscore.Conn, s natscore.Status) {
			logger.Printf("status: %s", s)
		}),
		natscore.WithErrorHandler(func(_ *natscore.Conn, sub *natscore.Subscription, err error) {
			if sub != nil {
				logger.Printf("error on %q: %v", sub.Subject(), err)
				return
			}
			logger.Printf("error: %v", err)
		}),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := conn.ConnectAndWait(ctx); err != nil {
		logger.Fatalf("connect: %v", err)
	}
	defer conn.Dispose()

	switch *mode {
	case "sub":
		runSub(ctx, conn, *subject, *verbose, logger)
	case "pub":
		runPub(ctx, conn, *subject, *rateLimit, logger)
	case "request":
		runRequest(ctx, conn, *subject, logger)
	default:
		logger.Fatalf("unknown -mode %q", *mode)
	}
}

func runSub(ctx context.Context, conn *natscore.Conn, subject string, verbose bool, logger *log.Logger) {
	sub, err := conn.Subscribe(subject, 0)
	if err != nil {
		logger.Fatalf("subscribe: %v", err)
	}
	logger.Printf("listening on %q", subject)
	for {
		msg, err := sub.Next(ctx)
		if err != nil {
			logger.Printf("subscription ended: %v", err)
			return
		}
		if verbose {
			logger.Printf("%s: %s", msg.Subject, msg.Data)
		} else {
			fmt.Println(string(msg.Data))
		}
	}
}

// runPub streams stdin lines as PUB frames, optionally capped with a token
// bucket (golang.org/x/time/rate) so a fat client can't overrun a small
// server during manual load testing.
func runPub(ctx context.Context, conn *natscore.Conn, subject string, ratePerSec float64, logger *log.Logger) {
	var limiter *rate.Limiter
	if ratePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(ratePerSec), 1)
	}

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
		}
		if err := conn.Publish(subject, scanner.Bytes()); err != nil {
			logger.Printf("publish: %v", err)
			return
		}
	}
	if err := conn.FlushTimeout(5 * time.Second); err != nil {
		logger.Printf("flush: %v", err)
	}
}

func runRequest(ctx context.Context, conn *natscore.Conn, subject string, logger *log.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		msg, err := conn.Request(reqCtx, subject, scanner.Bytes())
		cancel()
		if err != nil {
			logger.Printf("request: %v", err)
			continue
		}
		fmt.Println(string(msg.Data))
	}
}
