// mboxsim drives the mailbox core against a simulated physical link: every
// channel sends a batch of words, a fake remote processor echoes them back,
// and the run fails if anything is lost or reordered.
package main

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mikeshx/omap/hal"
	"github.com/mikeshx/omap/hal/loopback"
	"github.com/mikeshx/omap/internal/buildinfo"
	"github.com/mikeshx/omap/internal/config"
	"github.com/mikeshx/omap/mbox"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:     "mboxsim",
		Short:   "Exercise the mailbox core over a loopback link",
		Version: buildinfo.Short(),
		RunE: func(cmd *cobra.Command, args []string) error {
			config.SetDefaults()
			if cfgFile != "" {
				viper.SetConfigFile(cfgFile)
				if err := viper.ReadInConfig(); err != nil {
					return err
				}
			}
			viper.SetEnvPrefix("MBOXSIM")
			viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
			viper.AutomaticEnv()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return run(cfg)
		},
	}

	cmd.Flags().StringVar(&cfgFile, "config", "", "config file (yaml)")
	cmd.Flags().Int("messages", 0, "messages per channel")
	cmd.Flags().Int("channels", 0, "channels sharing the link")
	cmd.Flags().Int("depth", 0, "hardware FIFO depth")
	cmd.Flags().String("variant", "", "hardware variant (flagged|pipelined)")
	cmd.Flags().Int("queue-bytes", 0, "software queue capacity in bytes")
	cmd.Flags().String("level", "", "log level")

	bind := map[string]string{
		"messages":    "run.messages",
		"channels":    "link.channels",
		"depth":       "link.depth",
		"variant":     "link.variant",
		"queue-bytes": "mailbox.queue_bytes",
		"level":       "logging.level",
	}
	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		for flag, key := range bind {
			if cmd.Flags().Changed(flag) {
				if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
					return err
				}
			}
		}
		return nil
	}

	return cmd
}

func run(cfg *config.Config) error {
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		Level(level).With().Timestamp().Logger()

	variant := hal.VariantFlagged
	if cfg.Link.Variant == "pipelined" {
		variant = hal.VariantPipelined
	}

	link := loopback.NewLink(loopback.Config{
		Endpoints:   cfg.Link.Channels,
		Depth:       cfg.Link.Depth,
		Variant:     variant,
		ContextSave: true,
	})

	reg := mbox.NewRegistry(mbox.Options{
		IRQ:        link,
		QueueBytes: cfg.Mailbox.QueueBytes,
		Logger:     &log,
	})

	channels := make([]*mbox.Channel, cfg.Link.Channels)
	for i := range channels {
		channels[i] = mbox.NewChannel(fmt.Sprintf("c%d", i), i, link.Endpoint(i))
	}
	if err := reg.Register(channels); err != nil {
		return err
	}
	defer reg.Unregister()

	timeout := time.Duration(cfg.Run.TimeoutMs) * time.Millisecond

	type result struct {
		channel string
		echoed  []hal.Message
	}
	results := make(chan result, len(channels))

	stop := make(chan struct{})
	defer close(stop)

	var wg sync.WaitGroup
	for i, c := range channels {
		remote := link.Remote(i)

		// Remote processor: echo everything the host transmits.
		go func() {
			for {
				select {
				case <-stop:
					return
				default:
				}
				m, ok := remote.Pop()
				if !ok {
					runtime.Gosched()
					continue
				}
				for !remote.Push(m) {
					runtime.Gosched()
				}
			}
		}()

		wg.Add(1)
		go func(i int, c *mbox.Channel) {
			defer wg.Done()

			echoed := make(chan hal.Message, cfg.Run.Messages)
			obs := mbox.ObserverFunc(func(m hal.Message) { echoed <- m })
			ch, err := reg.Open(c.Name(), &obs)
			if err != nil {
				log.Error().Err(err).Str("mbox", c.Name()).Msg("open failed")
				results <- result{channel: c.Name()}
				return
			}
			defer reg.Close(ch, &obs)

			deadline := time.After(timeout)

			for n := 0; n < cfg.Run.Messages; n++ {
				word := hal.Message(uint32(i)<<24 | uint32(n))
				for {
					err := ch.Send(word)
					if err == nil {
						break
					}
					// Transmit queue full: back off and retry.
					runtime.Gosched()
				}
				log.Debug().Str("mbox", ch.Name()).Uint32("word", uint32(word)).Msg("sent")
			}

			res := result{channel: ch.Name()}
			for len(res.echoed) < cfg.Run.Messages {
				select {
				case m := <-echoed:
					res.echoed = append(res.echoed, m)
				case <-deadline:
					results <- res
					return
				}
			}
			results <- res
		}(i, c)
	}

	wg.Wait()

	lost := 0
	for range channels {
		res := <-results
		ok := len(res.echoed) == cfg.Run.Messages && inOrder(res.echoed)
		if !ok {
			lost++
		}
		log.Info().
			Str("mbox", res.channel).
			Int("echoed", len(res.echoed)).
			Int("sent", cfg.Run.Messages).
			Bool("in_order", inOrder(res.echoed)).
			Msg("channel done")
	}

	for _, c := range channels {
		st := c.Stats()
		log.Info().
			Str("mbox", c.Name()).
			Uint64("tx_direct", st.TxDirect).
			Uint64("tx_queued", st.TxQueued).
			Uint64("rx_queued", st.RxQueued).
			Msg("stats")
	}

	if lost > 0 {
		return fmt.Errorf("%d of %d channels lost or reordered messages", lost, len(channels))
	}
	log.Info().Int("channels", len(channels)).Int("messages", cfg.Run.Messages).Msg("all messages echoed in order")
	return nil
}

func inOrder(msgs []hal.Message) bool {
	for i := 1; i < len(msgs); i++ {
		if uint32(msgs[i])&0xffffff <= uint32(msgs[i-1])&0xffffff {
			return false
		}
	}
	return true
}
