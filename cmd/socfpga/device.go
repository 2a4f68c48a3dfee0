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

package main

import (
	"crypto/rand"
	"errors"
	"fmt"

	"k8s.io/klog/v2"

	"github.com/transparency-dev/socfpga-firmware/fcs"
	"github.com/transparency-dev/socfpga-firmware/internal/config"
	"github.com/transparency-dev/socfpga-firmware/internal/emu"
	"github.com/transparency-dev/socfpga-firmware/internal/mmio"
	"github.com/transparency-dev/socfpga-firmware/mailbox"
	"github.com/transparency-dev/socfpga-firmware/rstmgr"
)

var errNoMailbox = errors.New("no SDM mailbox transport available")

// noMailbox is used on hardware, where the mailbox queues are owned by the
// secure monitor.
type noMailbox struct{}

func (noMailbox) Send(_ *mailbox.Request) ([]uint32, error) {
	return nil, errNoMailbox
}

func (noMailbox) SendAsync(_ *mailbox.Request) (mailbox.Token, error) {
	return 0, errNoMailbox
}

// device holds the register space and services of the selected target.
type device struct {
	bridges *rstmgr.Manager
	fcs     *fcs.Service

	// set on emulated targets only
	sim *mmio.Sim
	sdm *emu.SDM

	close func() error
}

func (d *device) Close() error {
	if d.close == nil {
		return nil
	}

	return d.close()
}

func openDevice(cfg *config.Config, devmem string) (*device, error) {
	p, err := rstmgr.Lookup(cfg.Platform)

	if err != nil {
		return nil, err
	}

	d := &device{
		bridges: &rstmgr.Manager{Platform: p},
		fcs: &fcs.Service{
			DDR: fcs.Range{Base: cfg.DDR.Base, Size: cfg.DDR.Size},
		},
	}

	if devmem != "" {
		regs, closer, err := openDevMem(devmem, p.RSTMGR, p.SYSMGR, p.F2SDRAMMGR)

		if err != nil {
			return nil, fmt.Errorf("could not open %s, %v", devmem, err)
		}

		klog.Infof("socfpga: %s registers mapped through %s", p.Name, devmem)

		d.bridges.Regs = regs
		d.fcs.Regs = regs
		d.fcs.Mailbox = noMailbox{}
		d.close = closer

		return d, nil
	}

	if err = d.emulate(cfg, p); err != nil {
		return nil, err
	}

	klog.Infof("socfpga: %s hardware emulated", p.Name)

	return d, nil
}

func (d *device) emulate(cfg *config.Config, p *rstmgr.Platform) error {
	key, err := cfg.Emulator.SealingKey()

	if err != nil {
		return err
	}

	if key == nil {
		key = make([]byte, 32)

		if _, err = rand.Read(key); err != nil {
			return err
		}
	}

	d.sim = mmio.NewSim()
	emu.AttachBridges(d.sim, p, cfg.Emulator.Faults)

	if d.sdm, err = emu.NewSDM(d.sim, key); err != nil {
		return err
	}

	d.sdm.Provisioning = cfg.Emulator.Provisioning
	d.sdm.OwnerID = cfg.Emulator.OwnerID
	d.sdm.Latency = cfg.Emulator.Latency
	d.sdm.Error = cfg.Emulator.MailboxError

	d.bridges.Regs = d.sim
	d.fcs.Regs = d.sim
	d.fcs.Mailbox = d.sdm

	return nil
}
