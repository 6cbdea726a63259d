package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	nats "github.com/nats-io/nats.go"
)

// JetStreamBus реализует EventBus поверх NATS JetStream. События лежат в
// subject'ах plots.<world>.<type>, поэтому фильтр по одному миру или типу
// применяет сам сервер.
type JetStreamBus struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	stream string

	published atomic.Uint64
	consumed  atomic.Uint64
	dropped   atomic.Uint64
}

const subjectRoot = "plots"

// subjectToken приводит имя мира к допустимому токену subject'а.
func subjectToken(world string) string {
	if world == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t':
			return '_'
		}
		return r
	}, world)
}

func eventSubject(ev *Envelope) string {
	return subjectRoot + "." + subjectToken(ev.World()) + "." + ev.EventType
}

// filterSubject сужает подписку, когда фильтр задаёт ровно один мир и/или тип.
func filterSubject(f Filter) string {
	world := "*"
	if len(f.Worlds) == 1 {
		world = subjectToken(f.Worlds[0])
	}
	if len(f.Types) == 1 {
		return subjectRoot + "." + world + "." + f.Types[0]
	}
	return subjectRoot + "." + world + ".>"
}

// NewJetStreamBus подключается к NATS (url вида nats://127.0.0.1:4222) и
// создаёт стрим, если его ещё нет. Пустое имя стрима - "PLOTS".
func NewJetStreamBus(url, stream string, retention time.Duration) (*JetStreamBus, error) {
	if stream == "" {
		stream = "PLOTS"
	}
	nc, err := nats.Connect(url, nats.Name(Source), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	if _, err := js.StreamInfo(stream); err != nil {
		cfg := &nats.StreamConfig{
			Name:       stream,
			Subjects:   []string{subjectRoot + ".>"},
			Retention:  nats.LimitsPolicy,
			MaxAge:     retention,
			Storage:    nats.FileStorage,
			Duplicates: 2 * time.Minute,
		}
		if _, err := js.AddStream(cfg); err != nil {
			nc.Close()
			return nil, fmt.Errorf("создание стрима %s: %w", stream, err)
		}
	}
	return &JetStreamBus{nc: nc, js: js, stream: stream}, nil
}

// Publish публикует JSON конверта; ID события служит ключом дедупликации.
func (jb *JetStreamBus) Publish(ctx context.Context, ev *Envelope) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := jb.js.Publish(eventSubject(ev), data, nats.Context(ctx), nats.MsgId(ev.ID)); err != nil {
		jb.dropped.Add(1)
		return fmt.Errorf("jetstream publish %s: %w", ev.EventType, err)
	}
	jb.published.Add(1)
	return nil
}

// Subscribe создаёт эфемерный consumer. С f.Since стрим читается с этого
// момента, иначе приходят только новые события.
func (jb *JetStreamBus) Subscribe(ctx context.Context, f Filter, h Handler) (Subscription, error) {
	start := nats.DeliverNew()
	if !f.Since.IsZero() {
		start = nats.StartTime(f.Since)
	}
	subj := filterSubject(f)

	sub, err := jb.js.Subscribe(subj, func(msg *nats.Msg) {
		var ev Envelope
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			jb.dropped.Add(1)
			_ = msg.Term()
			return
		}
		if ctx.Err() == nil && f.Match(&ev) {
			h(ctx, &ev)
			jb.consumed.Add(1)
		}
		_ = msg.Ack()
	}, nats.BindStream(jb.stream), nats.ManualAck(), start, nats.AckWait(30*time.Second))
	if err != nil {
		return nil, fmt.Errorf("jetstream subscribe %s: %w", subj, err)
	}
	return jetSub{sub}, nil
}

type jetSub struct{ s *nats.Subscription }

func (j jetSub) Unsubscribe() { _ = j.s.Unsubscribe() }

// Metrics возвращает счётчики этого процесса; очередь хранит сам JetStream.
func (jb *JetStreamBus) Metrics() Stats {
	return Stats{
		Published: jb.published.Load(),
		Consumed:  jb.consumed.Load(),
		Dropped:   jb.dropped.Load(),
	}
}

// Close дожидается отправки буферизованных сообщений и закрывает соединение.
func (jb *JetStreamBus) Close() error {
	return jb.nc.Drain()
}
