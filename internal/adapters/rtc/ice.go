package rtc

import (
	"fmt"
	"strings"

	"github.com/dkeye/huddle/internal/config"
	"github.com/pion/stun/v3"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// ICEServers converts configured STUN/TURN entries into the list clients get
// from /api/ice-servers. Every URL must parse; TURN entries need credentials.
func ICEServers(in []config.ICEServer) ([]webrtc.ICEServer, error) {
	out := make([]webrtc.ICEServer, 0, len(in))
	for i, s := range in {
		urls := make([]string, 0, len(s.URLs))
		turn := false
		for _, raw := range s.URLs {
			raw = strings.TrimSpace(raw)
			if raw == "" {
				continue
			}
			u, err := stun.ParseURI(raw)
			if err != nil {
				return nil, fmt.Errorf("ice_servers[%d]: %q: %w", i, raw, err)
			}
			if u.Scheme == stun.SchemeTypeTURN || u.Scheme == stun.SchemeTypeTURNS {
				turn = true
			}
			urls = append(urls, raw)
		}
		if len(urls) == 0 {
			return nil, fmt.Errorf("ice_servers[%d]: no urls", i)
		}
		server := webrtc.ICEServer{URLs: urls}
		if turn {
			if s.Username == "" || s.Credential == "" {
				return nil, fmt.Errorf("ice_servers[%d]: turn requires username and credential", i)
			}
			server.Username = s.Username
			server.Credential = s.Credential
			server.CredentialType = webrtc.ICECredentialTypePassword
		}
		out = append(out, server)
	}
	log.Info().Str("module", "rtc").Int("ice_servers", len(out)).Msg("ice servers configured")
	return out, nil
}
