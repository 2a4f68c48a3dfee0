// Copyright 2024 The SoCFPGA Firmware authors. All Rights Reserved.
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

// Package config loads the boot services configuration file.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/transparency-dev/socfpga-firmware/internal/emu"
	"github.com/transparency-dev/socfpga-firmware/rstmgr"
)

// Defaults
const (
	DefaultPlatform = "agilex"
	DefaultDDRBase  = 0x0
	DefaultDDRSize  = 0x80000000
	DefaultListen   = "localhost:4242"
)

// Config represents the boot services configuration.
type Config struct {
	// Platform is the device family name.
	Platform string `yaml:"platform"`
	// DDR is the memory range accepted for secure command buffers.
	DDR DDR `yaml:"ddr"`
	// Listen is the SiP service RPC address.
	Listen string `yaml:"listen"`
	// Emulator configures the hardware models used when no device is
	// accessed.
	Emulator Emulator `yaml:"emulator"`
}

// DDR represents the DDR memory range.
type DDR struct {
	Base uint64 `yaml:"base"`
	Size uint64 `yaml:"size"`
}

// Emulator represents the hardware model configuration.
type Emulator struct {
	Faults emu.Faults `yaml:"faults"`
	// Provisioning holds the SDM provisioning data words.
	Provisioning []uint32 `yaml:"provisioning"`
	// OwnerID identifies the owner of encrypted objects.
	OwnerID uint64 `yaml:"owner_id"`
	// Key is the hex encoded 256-bit object sealing key, a random key is
	// used when empty.
	Key string `yaml:"key"`
	// Latency is the number of completion queries reporting busy before
	// an asynchronous job completes.
	Latency int `yaml:"latency"`
	// MailboxError, when not zero, fails every SDM command with this
	// code.
	MailboxError uint32 `yaml:"mailbox_error"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Platform: DefaultPlatform,
		DDR: DDR{
			Base: DefaultDDRBase,
			Size: DefaultDDRSize,
		},
		Listen: DefaultListen,
	}
}

// Load reads the configuration at path over the defaults, an empty path
// selects the defaults alone.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)

		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if _, err := rstmgr.Lookup(c.Platform); err != nil {
		return err
	}

	if c.DDR.Size == 0 {
		return errors.New("empty DDR range")
	}

	if c.DDR.Base+c.DDR.Size < c.DDR.Base {
		return errors.New("DDR range overflows")
	}

	if _, err := c.Emulator.SealingKey(); err != nil {
		return err
	}

	return nil
}

// SealingKey returns the decoded object sealing key, nil when not set.
func (e *Emulator) SealingKey() ([]byte, error) {
	if e.Key == "" {
		return nil, nil
	}

	key, err := hex.DecodeString(e.Key)

	if err != nil {
		return nil, fmt.Errorf("invalid emulator key: %w", err)
	}

	if len(key) != 32 {
		return nil, fmt.Errorf("invalid emulator key size %d", len(key))
	}

	return key, nil
}
