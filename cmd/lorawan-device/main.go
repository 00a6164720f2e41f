// Command lorawan-device is a test harness for a Class A end device: it
// loads a config file, joins the network, optionally sends a message and
// listens for downlinks.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/draginohat/lorawan-endpoint/device"
	"github.com/draginohat/lorawan-endpoint/lorawan"
)

var (
	configPath string
	logLevel   string
	message    string
	listen     bool
	joinWait   time.Duration

	rootCmd = &cobra.Command{
		Use:   "lorawan-device",
		Short: "LoRaWAN Class A end-device test harness",
		Long:  "Joins a LoRaWAN network (ABP or OTAA) from a config file, optionally sends a message and listens for downlinks.",
		RunE:  run,
	}
)

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "dragino.yaml", "device config file path")
	rootCmd.Flags().StringVarP(&logLevel, "log-level", "l", "info", "log level (debug, info, warning, error)")
	rootCmd.Flags().StringVarP(&message, "message", "m", "", "message to send once joined; skipped if empty")
	rootCmd.Flags().BoolVar(&listen, "listen", false, "keep running and print received downlinks until interrupted")
	rootCmd.Flags().DurationVar(&joinWait, "join-timeout", 30*time.Second, "how long to wait for a JoinAccept before giving up")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	log := logrus.New()
	lvl, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return errors.Wrapf(err, "invalid log level %q", logLevel)
	}
	log.SetLevel(lvl)

	cfg, err := device.Load(configPath, log)
	if err != nil {
		return errors.Wrap(err, "loading config")
	}

	radio := newStubRadio(log)
	d, err := device.New(cfg, radio, nil, device.EU868, device.DefaultRetries, log)
	if err != nil {
		return errors.Wrap(err, "constructing device")
	}

	var received int32
	if listen {
		d.SetDownlinkCallback(func(payload []byte, mtype lorawan.MType) {
			log.WithFields(logrus.Fields{
				"mtype":   mtype,
				"payload": fmt.Sprintf("%x", payload),
			}).Info("downlink received")
			atomic.AddInt32(&received, 1)
		})
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if err := d.Join(); err != nil {
		return errors.Wrap(err, "joining")
	}

	deadline := time.Now().Add(joinWait)
	for !d.Registered() {
		if time.Now().After(deadline) {
			return errors.New("timed out waiting for JoinAccept")
		}
		select {
		case sig := <-sigCh:
			log.WithField("signal", sig).Info("interrupted before join completed")
			return nil
		case <-time.After(2 * time.Second):
			log.Info("waiting for JoinAccept")
		}
	}
	log.Info("device registered")

	if message != "" {
		if err := d.Send(message); err != nil {
			return errors.Wrap(err, "sending message")
		}
		log.WithField("message", message).Info("message sent")
	}

	if listen {
		log.Info("listening for downlinks, press ctrl-c to quit")
		<-sigCh
		log.WithField("received", atomic.LoadInt32(&received)).Info("shutting down")
	}

	return nil
}
