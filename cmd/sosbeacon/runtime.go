package main

import (
	"context"
	"fmt"
	"io"
	"log"

	"golang.org/x/sync/errgroup"

	"sosbeacon/internal/alert"
	"sosbeacon/internal/config"
	"sosbeacon/internal/gpio"
	"sosbeacon/internal/gps"
	"sosbeacon/internal/modem"
	"sosbeacon/internal/notify"
	"sosbeacon/internal/web"
)

type triggerLine interface {
	alert.Input
	io.Closer
}

type indicatorLine interface {
	alert.Output
	io.Closer
}

// Hardware hooks, swapped by tests.
var (
	openTriggerFn = func(pin int, activeLow bool) (triggerLine, error) {
		l, err := gpio.OpenInput(pin, activeLow)
		if err != nil {
			return nil, err
		}
		return l, nil
	}
	openIndicatorFn = func(pin int) (indicatorLine, error) {
		l, err := gpio.OpenOutput(pin)
		if err != nil {
			return nil, err
		}
		return l, nil
	}
	newNotifierFn = buildNotifier
)

// notifier is what the alert task calls, plus what main needs to inspect
// and shut down the backends.
type notifier struct {
	alert.Notifier
	modem *modem.Modem
	mqtt  *notify.MQTT
	udp   *notify.UDP
}

func buildNotifier(cfg config.Config) (*notifier, error) {
	multi := notify.NewMulti()
	n := &notifier{Notifier: multi}

	if cfg.Modem.Enable {
		n.modem = modem.New(modem.Config{
			Device:         cfg.Modem.Device,
			Baud:           cfg.Modem.Baud,
			CommandTimeout: cfg.Modem.CommandTimeout,
			SubmitTimeout:  cfg.Modem.SubmitTimeout,
		})
		multi.Add("sms", n.modem)
		log.Printf("modem enabled device=%s baud=%d", cfg.Modem.Device, cfg.Modem.Baud)
	}
	if cfg.MQTT.Enable {
		m, err := notify.NewMQTT(notify.MQTTConfig{
			Broker:         cfg.MQTT.Broker,
			ClientID:       cfg.MQTT.ClientID,
			Username:       cfg.MQTT.Username,
			Password:       cfg.MQTT.Password,
			TopicPrefix:    cfg.MQTT.TopicPrefix,
			PublishTimeout: cfg.MQTT.PublishTimeout,
		})
		if err != nil {
			n.close()
			return nil, err
		}
		m.Connect()
		n.mqtt = m
		multi.Add("mqtt", m)
	}
	if cfg.UDP.Enable {
		u, err := notify.NewUDP(cfg.UDP.Dest)
		if err != nil {
			n.close()
			return nil, err
		}
		n.udp = u
		multi.Add("udp", u)
		log.Printf("udp alerts enabled dest=%s", cfg.UDP.Dest)
	}
	if multi.Len() == 0 {
		return nil, fmt.Errorf("no notifier enabled")
	}
	return n, nil
}

func (n *notifier) close() {
	if n.modem != nil {
		_ = n.modem.Close()
	}
	if n.mqtt != nil {
		n.mqtt.Close()
	}
	if n.udp != nil {
		_ = n.udp.Close()
	}
}

type runtime struct {
	cfg    config.Config
	status *web.Status

	notifier  *notifier
	gps       *gps.Service
	trigger   triggerLine
	indicator indicatorLine
	alert     *alert.Task
}

// newRuntime wires everything in dependency order: notifiers, the GPS
// service and its shared position, the GPIO lines, then the alert task.
func newRuntime(cfg config.Config) (*runtime, error) {
	r := &runtime{cfg: cfg, status: web.NewStatus()}
	ok := false
	defer func() {
		if !ok {
			r.close()
		}
	}()

	n, err := newNotifierFn(cfg)
	if err != nil {
		return nil, fmt.Errorf("notifier: %w", err)
	}
	r.notifier = n

	var sink gps.FixSink
	if n.mqtt != nil && cfg.MQTT.PublishFixes {
		sink = n.mqtt
	}
	r.gps = gps.New(gps.Config{
		Enable:          true,
		Source:          cfg.GPS.Source,
		Device:          cfg.GPS.Device,
		Baud:            cfg.GPS.Baud,
		GPSDAddr:        cfg.GPS.GPSDAddr,
		ReplayPath:      cfg.GPS.ReplayPath,
		RingCapacity:    cfg.GPS.RingCapacity,
		WorkCapacity:    cfg.GPS.WorkCapacity,
		SilenceTimeout:  cfg.GPS.SilenceTimeout,
		WaitTimeout:     cfg.GPS.WaitTimeout,
		PublishInterval: cfg.GPS.PublishInterval,
	}, sink)

	r.trigger, err = openTriggerFn(cfg.GPIO.TriggerPin, cfg.GPIO.TriggerActiveLow)
	if err != nil {
		return nil, fmt.Errorf("trigger gpio %d: %w", cfg.GPIO.TriggerPin, err)
	}
	var indicator alert.Output
	if line, err := openIndicatorFn(cfg.GPIO.IndicatorPin); err != nil {
		// The beacon still works without its LED.
		log.Printf("indicator gpio %d unavailable: %v", cfg.GPIO.IndicatorPin, err)
	} else {
		r.indicator = line
		indicator = line
	}

	r.alert, err = alert.New(alert.Config{
		Destination:    cfg.Alert.Destination,
		MessagePrefix:  cfg.Alert.MessagePrefix,
		IncludeMapLink: cfg.Alert.IncludeMapLink,
		Debounce:       cfg.Alert.Debounce,
		PollInterval:   cfg.Alert.PollInterval,
		HistorySize:    cfg.Alert.HistorySize,
	}, r.trigger, indicator, n, r.gps.Position())
	if err != nil {
		return nil, err
	}

	src := web.Sources{
		GPS:     r.gps.Snapshot,
		Alert:   r.alert.Snapshot,
		History: r.alert.History,
	}
	if n.modem != nil {
		src.Modem = n.modem.Snapshot
	}
	r.status.SetSources(src)

	ok = true
	return r, nil
}

// run blocks until ctx is done or a task fails. Only a broken GPS start is
// fatal; a status server that cannot bind is logged and left out.
func (r *runtime) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if err := r.gps.Start(gctx); err != nil {
		return fmt.Errorf("gps: %w", err)
	}
	g.Go(func() error {
		<-gctx.Done()
		r.gps.Close()
		return nil
	})

	g.Go(func() error {
		return r.alert.Run(gctx)
	})

	if listen := r.cfg.Web.Listen; listen != "" {
		g.Go(func() error {
			log.Printf("web listening addr=%s", listen)
			if err := web.Serve(gctx, listen, r.status); err != nil {
				log.Printf("web server stopped: %v", err)
			}
			return nil
		})
	}

	return g.Wait()
}

func (r *runtime) close() {
	if r.gps != nil {
		r.gps.Close()
	}
	if r.indicator != nil {
		_ = r.indicator.Close()
	}
	if r.trigger != nil {
		_ = r.trigger.Close()
	}
	if r.notifier != nil {
		r.notifier.close()
	}
}
