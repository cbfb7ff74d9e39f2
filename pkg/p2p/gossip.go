package p2p

import (
	"context"
	"encoding/json"

	libp2p "github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/zap"

	"github.com/tokenswap/swapd/pkg/swap"
)

const topicEvents = "swapd-events"

// Gossip replicates the committed event stream to peer nodes over GossipSub.
// Peers consume the stream for mirrors, monitoring, and audit trails; the
// engine itself never acts on remote events.
type Gossip struct {
	h     host.Host
	ps    *pubsub.PubSub
	topic *pubsub.Topic
	sub   *pubsub.Subscription
	log   *zap.SugaredLogger
}

type Config struct {
	ListenAddr string   // multiaddr, e.g. /ip4/0.0.0.0/tcp/9000
	Bootstrap  []string // peer multiaddrs to dial on startup
	Logger     *zap.SugaredLogger
}

func NewGossip(ctx context.Context, cfg Config) (*Gossip, error) {
	var opts []libp2p.Option
	if cfg.ListenAddr != "" {
		maddr, err := ma.NewMultiaddr(cfg.ListenAddr)
		if err != nil {
			return nil, err
		}
		opts = append(opts, libp2p.ListenAddrs(maddr))
	}
	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, err
	}
	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		h.Close()
		return nil, err
	}

	log := cfg.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	g := &Gossip{h: h, ps: ps, log: log}
	if g.topic, err = ps.Join(topicEvents); err != nil {
		h.Close()
		return nil, err
	}
	if g.sub, err = g.topic.Subscribe(); err != nil {
		h.Close()
		return nil, err
	}

	for _, bs := range cfg.Bootstrap {
		if err := connectMultiaddr(ctx, h, bs); err != nil {
			log.Warnw("bootstrap_connect_failed", "addr", bs, "err", err)
		}
	}

	go g.recvLoop(ctx)

	log.Infow("gossip_ready", "peer", h.ID().String(), "listen", cfg.ListenAddr)
	return g, nil
}

func connectMultiaddr(ctx context.Context, h host.Host, addr string) error {
	m, err := ma.NewMultiaddr(addr)
	if err != nil {
		return err
	}
	info, err := peer.AddrInfoFromP2pAddr(m)
	if err != nil {
		return err
	}
	return h.Connect(ctx, *info)
}

// Host exposes the libp2p host (peer id, addresses)
func (g *Gossip) Host() host.Host { return g.h }

// Run consumes the local event feed and publishes every event to the topic.
// Blocks until ctx is cancelled or the feed channel closes.
func (g *Gossip) Run(ctx context.Context, feed *swap.Feed) {
	events := feed.Subscribe(512)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				g.log.Warnw("gossip_marshal_error", "err", err)
				continue
			}
			if err := g.topic.Publish(ctx, data); err != nil {
				g.log.Warnw("gossip_publish_error", "seq", ev.Seq, "err", err)
			}
		}
	}
}

// recvLoop logs events replicated from peers. Own publishes are filtered out.
func (g *Gossip) recvLoop(ctx context.Context) {
	for {
		msg, err := g.sub.Next(ctx)
		if err != nil {
			return
		}
		if msg.ReceivedFrom == g.h.ID() {
			continue
		}
		var ev swap.Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			g.log.Warnw("gossip_decode_error", "from", msg.ReceivedFrom.String(), "err", err)
			continue
		}
		g.log.Infow("remote_event",
			"from", msg.ReceivedFrom.String(),
			"seq", ev.Seq,
			"type", ev.Type)
	}
}

// Close tears the host down
func (g *Gossip) Close() error {
	g.sub.Cancel()
	return g.h.Close()
}
