// Copyright © 2021 Kris Nóva <kris@nivenly.com>
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// ────────────────────────────────────────────────────────────────────────────
//
//  ████████╗██╗    ██╗██╗███╗   ██╗██╗  ██╗
//  ╚══██╔══╝██║    ██║██║████╗  ██║╚██╗██╔╝
//     ██║   ██║ █╗ ██║██║██╔██╗ ██║ ╚███╔╝
//     ██║   ██║███╗██║██║██║╚██╗██║ ██╔██╗
//     ██║   ╚███╔███╔╝██║██║ ╚████║██╔╝ ██╗
//     ╚═╝    ╚══╝╚══╝ ╚═╝╚═╝  ╚═══╝╚═╝  ╚═╝
//
// ────────────────────────────────────────────────────────────────────────────

package rtmp

import (
	"fmt"
	"strings"

	"github.com/gwuhaolin/livego/utils/uid"
	"github.com/patrickmn/go-cache"
	"github.com/spf13/viper"
)

/*
twinx-rtmp.yaml

  rtmp_addr: ":1935"
  chunk_size: 4096
  window_ack_size: 2500000
  peer_bandwidth: 2500000
  max_message_length: 16777215
  apps:
    - twinx
  keys:
    twinx: twinx_abc
*/

type ServerConfig struct {
	ConfigFile       string            `mapstructure:"config_file"`
	RTMPAddr         string            `mapstructure:"rtmp_addr"`
	ChunkSize        uint32            `mapstructure:"chunk_size"`
	WindowAckSize    uint32            `mapstructure:"window_ack_size"`
	PeerBandwidth    uint32            `mapstructure:"peer_bandwidth"`
	MaxMessageLength uint32            `mapstructure:"max_message_length"`
	Apps             []string          `mapstructure:"apps"`
	Keys             map[string]string `mapstructure:"keys"`
	Verbose          bool              `mapstructure:"verbose"`
}

// EnvPrefix is the prefix of environment variables that override
// configuration values, such as TWINX_RTMP_ADDR.
const EnvPrefix = "TWINX"

// default config
var defaultConf = ServerConfig{
	RTMPAddr:         fmt.Sprintf(":%s", DefaultLocalPort),
	ChunkSize:        4096,
	WindowAckSize:    DefaultWindowAcknowledgementSize,
	PeerBandwidth:    DefaultPeerBandwidthSize,
	MaxMessageLength: MaximumMessageLength,
	Apps:             []string{DefaultRTMPApp},
}

// NewConfig reads configuration from the defaults, an optional config
// file and TWINX_ environment variables, in increasing precedence.
func NewConfig(configFile string) (*ServerConfig, error) {
	v := viper.New()
	v.SetDefault("config_file", configFile)
	v.SetDefault("rtmp_addr", defaultConf.RTMPAddr)
	v.SetDefault("chunk_size", defaultConf.ChunkSize)
	v.SetDefault("window_ack_size", defaultConf.WindowAckSize)
	v.SetDefault("peer_bandwidth", defaultConf.PeerBandwidth)
	v.SetDefault("max_message_length", defaultConf.MaxMessageLength)
	v.SetDefault("apps", defaultConf.Apps)
	v.SetDefault("verbose", false)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %v", configFile, err)
		}
	}

	cfg := &ServerConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %v", err)
	}
	if err := validChunkSize(cfg.ChunkSize); err != nil {
		return nil, fmt.Errorf("config chunk_size: %v", err)
	}
	if cfg.MaxMessageLength == 0 || cfg.MaxMessageLength > MaximumMessageLength {
		return nil, fmt.Errorf("config max_message_length %d out of range", cfg.MaxMessageLength)
	}
	return cfg, nil
}

// CheckAppName reports whether clients may connect to app.
func (cfg *ServerConfig) CheckAppName(app string) bool {
	for _, a := range cfg.Apps {
		if a == app {
			return true
		}
	}
	return false
}

// StreamKeys is a two way mapping between channels and their stream
// keys. Publishing requires the key of a known channel.
type StreamKeys struct {
	localCache *cache.Cache
}

func NewStreamKeys() *StreamKeys {
	return &StreamKeys{
		localCache: cache.New(cache.NoExpiration, 0),
	}
}

// SetKey generates a new key for channel.
func (r *StreamKeys) SetKey(channel string) string {
	for {
		key := DefaultGenerateKeyPrefix + uid.RandStringRunes(DefaultGenerateKeyLength)
		if _, found := r.localCache.Get(key); !found {
			r.Add(channel, key)
			return key
		}
	}
}

// Add registers a known key for channel.
func (r *StreamKeys) Add(channel, key string) {
	r.localCache.SetDefault(channel, key)
	r.localCache.SetDefault(key, channel)
}

// GetKey returns the key of channel, generating one if needed.
func (r *StreamKeys) GetKey(channel string) string {
	if key, found := r.localCache.Get(channel); found {
		return key.(string)
	}
	return r.SetKey(channel)
}

func (r *StreamKeys) GetChannel(key string) (string, error) {
	channel, found := r.localCache.Get(key)
	if !found {
		return "", fmt.Errorf("%s does not exist", key)
	}
	return channel.(string), nil
}

func (r *StreamKeys) DeleteChannel(channel string) bool {
	key, ok := r.localCache.Get(channel)
	if !ok {
		return false
	}
	r.localCache.Delete(channel)
	r.localCache.Delete(key.(string))
	return true
}
