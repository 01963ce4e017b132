package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	log "github.com/echocat/slf4g"
	"github.com/echocat/slf4g/native"
	"github.com/echocat/slf4g/native/facade/value"
	"github.com/echocat/slf4g/native/formatter"

	"github.com/ayusman/lexi/internal/app"
	"github.com/ayusman/lexi/internal/tray"
)

func main() {
	lv := value.NewProvider(native.DefaultProvider)
	lv.Consumer.Formatter.Codec = value.MappingFormatterCodec{
		"text": formatter.NewText(func(v *formatter.Text) {
			bv := true
			v.MultiLineMessageAfterFields = &bv
		}),
		"json": formatter.NewJson(),
	}

	var a app.App
	var withTray bool

	cmd := kingpin.New("lexi", "Live captions for sign language from a camera.").
		Action(func(*kingpin.ParseContext) error {
			if err := a.Initialize(); err != nil {
				return err
			}
			defer func() {
				if err := a.Dispose(); err != nil {
					log.WithError(err).Warn("Cannot release resources.")
				}
			}()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if !withTray {
				return a.Run(ctx)
			}

			t := tray.New(a.Session())
			t.OnQuit(func() {
				log.Info("Quit clicked. Going down...")
				cancel()
			})
			a.OnText = t.SetText
			a.OnState = t.SetState

			errCh := make(chan error, 1)
			go func() {
				errCh <- a.Run(ctx)
				t.Quit()
			}()
			t.Run()
			cancel()
			return <-errCh
		})
	a.SetupConfiguration(cmd)

	cmd.Flag("tray", "Show a system tray menu to control translation.").
		Envar("LEXI_TRAY").
		BoolVar(&withTray)
	cmd.Flag("log.level", "").
		SetValue(lv.Level)
	cmd.Flag("log.format", "").
		Default("text").
		SetValue(lv.Consumer.Formatter)
	cmd.Flag("log.color", "").
		Default("auto").
		SetValue(lv.Consumer.Formatter.ColorMode)

	kingpin.MustParse(cmd.Parse(os.Args[1:]))
}
