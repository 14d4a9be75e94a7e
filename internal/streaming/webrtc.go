package streaming

import (
	"sync"

	"github.com/AlexxIT/go2rtc/pkg/core"
	"github.com/AlexxIT/go2rtc/pkg/webrtc"
	pion "github.com/pion/webrtc/v4"

	"github.com/Gateworks/gst-gateworks-apps/internal/logging"
	"github.com/Gateworks/gst-gateworks-apps/internal/metrics"
)

// WebRTCConfig holds configuration for WebRTC connections.
type WebRTCConfig struct {
	// ICEServers for STUN/TURN, empty on a LAN.
	ICEServers []pion.ICEServer
}

// WebRTCManager answers browser offers. A peer counts as one viewer from
// the answer until its connection disconnects, fails or closes.
type WebRTCManager struct {
	hub    *Hub
	config WebRTCConfig
	logger logging.Logger

	mu    sync.Mutex
	peers map[string]func()
}

// NewWebRTCManager creates a manager whose peers attach to hub.
func NewWebRTCManager(hub *Hub, config WebRTCConfig, logger logging.Logger) *WebRTCManager {
	return &WebRTCManager{
		hub:    hub,
		config: config,
		logger: logger,
		peers:  make(map[string]func()),
	}
}

// CreateConsumer answers an SDP offer for mount. An empty mount means
// the hub's own.
func (m *WebRTCManager) CreateConsumer(mount, offer string) (string, error) {
	if mount != "" && !m.hub.Matches(mount) {
		return "", ErrStreamNotFound
	}

	api, err := NewWebRTCAPI()
	if err != nil {
		return "", err
	}
	pc, err := api.NewPeerConnection(pion.Configuration{ICEServers: m.config.ICEServers})
	if err != nil {
		return "", err
	}

	conn := webrtc.NewConn(pc)
	conn.Mode = core.ModePassiveConsumer
	if err = conn.SetOffer(offer); err != nil {
		_ = pc.Close()
		return "", err
	}

	release, err := m.hub.Attach(conn)
	if err != nil {
		_ = pc.Close()
		return "", err
	}

	answer, err := conn.GetCompleteAnswer(nil, nil)
	if err != nil {
		_ = pc.Close()
		release()
		return "", err
	}

	id := core.RandString(8, 10)
	n := m.add(id, func() {
		_ = conn.Stop()
		release()
	})
	m.logger.Debug("WebRTC peer attached", "peer_id", id, "peers", n)

	conn.Listen(func(msg any) {
		switch msg {
		case pion.PeerConnectionStateConnected:
			drainRTCP(pc)
		case pion.PeerConnectionStateDisconnected,
			pion.PeerConnectionStateFailed,
			pion.PeerConnectionStateClosed:
			m.remove(id, msg.(pion.PeerConnectionState).String())
		}
	})

	return answer, nil
}

// drainRTCP reads every sender's RTCP so the interceptors see NACK and
// PLI feedback.
func drainRTCP(pc *pion.PeerConnection) {
	for _, sender := range pc.GetSenders() {
		go func() {
			for {
				if _, _, err := sender.ReadRTCP(); err != nil {
					return
				}
			}
		}()
	}
}

func (m *WebRTCManager) add(id string, stop func()) int {
	m.mu.Lock()
	m.peers[id] = stop
	n := len(m.peers)
	m.mu.Unlock()
	metrics.SetWebRTCPeers(n)
	return n
}

// remove stops a peer once. Disconnected and closed can both fire for
// the same peer.
func (m *WebRTCManager) remove(id, reason string) {
	m.mu.Lock()
	stop, ok := m.peers[id]
	delete(m.peers, id)
	n := len(m.peers)
	m.mu.Unlock()
	if !ok {
		return
	}

	stop()
	metrics.SetWebRTCPeers(n)
	m.logger.Debug("WebRTC peer detached", "peer_id", id, "reason", reason, "peers", n)
}

// Stop closes every peer and releases its viewer.
func (m *WebRTCManager) Stop() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.peers))
	for id := range m.peers {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.remove(id, "shutdown")
	}
}

// PeerCount returns the number of attached WebRTC peers.
func (m *WebRTCManager) PeerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.peers)
}
