// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package proxy

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/usbarmory/GoTEE-ffa/ffa"
)

// Config represents the proxy configuration.
type Config struct {
	// PageSize is the host native page size, it must be 4K, 16K or 64K.
	PageSize uint64 `toml:"page_size"`
	// MailboxPages is the size, in native pages, of each RX/TX buffer.
	MailboxPages uint64 `toml:"mailbox_pages"`
	// HostID is the FF-A endpoint identifier of the host.
	HostID uint16 `toml:"host_id"`
}

// DefaultConfig returns a configuration with a single 4K page mailbox for
// endpoint 0.
func DefaultConfig() Config {
	return Config{
		PageSize:     4096,
		MailboxPages: 1,
		HostID:       0,
	}
}

// ParseConfig decodes a TOML proxy configuration, missing keys retain their
// default value.
func ParseConfig(buf []byte) (conf Config, err error) {
	conf = DefaultConfig()

	md, err := toml.Decode(string(buf), &conf)

	if err != nil {
		return conf, fmt.Errorf("invalid configuration, %v", err)
	}

	if keys := md.Undecoded(); len(keys) > 0 {
		return conf, fmt.Errorf("invalid configuration, unknown key %s", keys[0])
	}

	err = conf.Validate()

	return
}

// Validate checks the configuration consistency.
func (c Config) Validate() error {
	switch c.PageSize {
	case 4 << 10, 16 << 10, 64 << 10:
	default:
		return fmt.Errorf("invalid page size %#x", c.PageSize)
	}

	if c.MailboxPages == 0 {
		return fmt.Errorf("invalid mailbox size")
	}

	return nil
}

// BufferSize returns the size in bytes of each RX/TX buffer.
func (c Config) BufferSize() int {
	return int(c.MailboxPages * c.PageSize)
}

// ffaPages returns the size of each RX/TX buffer in FF-A pages.
func (c Config) ffaPages() uint32 {
	return uint32(uint64(c.BufferSize()) / ffa.PageSize)
}
