// Package pagewire runs server-driven pages behind a relay.
//
// A pagewire process holds a single outbound WebSocket to a relay. The
// relay forwards browser sessions to it; for every session the process
// runs the page's Go handler, which declares widgets in order, and the
// resulting widget tree is streamed back through the relay.
//
// Typical use:
//
//	cfg, err := config.Load("pagewire.toml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	app, err := pagewire.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	app.Router().Page("/counter", "Counter", func(ctx context.Context, b *ui.Builder) error {
//	    if b.Button("Add") {
//	        // ...
//	    }
//	    return nil
//	})
//
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer stop()
//	if err := app.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package pagewire
