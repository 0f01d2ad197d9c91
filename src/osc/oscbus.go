package osc

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/hypebeast/go-osc/osc"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/vdeck/deckrouter/src/deck"
)

var (
	reGroupName = regexp.MustCompile(`^/composition/groups/(\d+)/name$`)
	reLayerName = regexp.MustCompile(`^/composition/groups/(\d+)/layers/(\d+)/name$`)
)

// Bus is the show-control transport: fire-and-forget OSC out, plus a receive
// server that feeds group and layer names back into the deck manager.
type Bus struct {
	log    zerolog.Logger
	client *osc.Client
	rxAddr string
	decks  *deck.Manager
}

// NewBus builds a Bus sending to txHost:txPort and receiving on
// rxHost:rxPort.
func NewBus(txHost string, txPort int, rxHost string, rxPort int, decks *deck.Manager) *Bus {
	return &Bus{
		log:    log.With().Str("module", "Osc").Logger(),
		client: osc.NewClient(txHost, txPort),
		rxAddr: fmt.Sprintf("%s:%d", rxHost, rxPort),
		decks:  decks,
	}
}

// Send emits one addressed value. Ints go out as int32, floats as float32.
// The transport is fire-and-forget; errors are returned for logging only.
func (b *Bus) Send(address string, value interface{}) error {
	msg := osc.NewMessage(address)
	switch v := value.(type) {
	case int:
		msg.Append(int32(v))
	case int32:
		msg.Append(v)
	case float64:
		msg.Append(float32(v))
	case float32:
		msg.Append(v)
	case bool:
		if v {
			msg.Append(int32(1))
		} else {
			msg.Append(int32(0))
		}
	case string:
		msg.Append(v)
	default:
		return fmt.Errorf("unsupported osc value type %T", value)
	}
	return b.client.Send(msg)
}

// Serve runs the receive server until the context is done.
func (b *Bus) Serve(ctx context.Context) error {
	server := &osc.Server{Addr: b.rxAddr, Dispatcher: b}
	b.log.Info().Str("addr", b.rxAddr).Msg("OSC receiver listening")

	errc := make(chan error, 1)
	go func() { errc <- server.ListenAndServe() }()

	select {
	case <-ctx.Done():
		server.CloseConnection()
		return nil
	case err := <-errc:
		if err != nil {
			b.log.Error().Err(err).Msg("OSC receiver stopped")
		}
		return err
	}
}

// Dispatch implements osc.Dispatcher over every incoming packet, so topology
// addresses can be pattern-matched instead of registered one by one.
func (b *Bus) Dispatch(packet osc.Packet) {
	switch p := packet.(type) {
	case *osc.Message:
		b.handle(p)
	case *osc.Bundle:
		for _, msg := range p.Messages {
			b.handle(msg)
		}
		for _, bundle := range p.Bundles {
			b.Dispatch(bundle)
		}
	}
}

func (b *Bus) handle(msg *osc.Message) {
	if m := reGroupName.FindStringSubmatch(msg.Address); m != nil {
		index, _ := strconv.Atoi(m[1])
		name := firstString(msg.Arguments, fmt.Sprintf("Group %d", index))
		b.decks.UpsertGroup(index, name)
		b.log.Debug().Int("group", index).Str("name", name).Msg("Group name received")
		return
	}
	if m := reLayerName.FindStringSubmatch(msg.Address); m != nil {
		groupIndex, _ := strconv.Atoi(m[1])
		layerIndex, _ := strconv.Atoi(m[2])
		name := firstString(msg.Arguments, fmt.Sprintf("Layer %d", layerIndex))
		b.decks.UpsertLayer(groupIndex, layerIndex, name, nil, 0)
		b.log.Debug().Int("group", groupIndex).Int("layer", layerIndex).Str("name", name).Msg("Layer name received")
		return
	}
}

func firstString(args []interface{}, fallback string) string {
	if len(args) == 0 {
		return fallback
	}
	if s, ok := args[0].(string); ok {
		return s
	}
	return fmt.Sprintf("%v", args[0])
}
