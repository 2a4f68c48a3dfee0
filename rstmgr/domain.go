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

package rstmgr

import (
	"fmt"
	"strings"
)

// Domain is a bit set of interconnect bridge domains.
type Domain uint32

const (
	SOC2FPGA Domain = 1 << iota
	LWHPS2FPGA
	FPGA2SOC
	F2SDRAM0
	F2SDRAM1
	F2SDRAM2

	// Interconnect groups the CPU interconnect facing domains.
	Interconnect = SOC2FPGA | LWHPS2FPGA
	// Fabric groups the FPGA fabric facing domains.
	Fabric = FPGA2SOC | F2SDRAM0 | F2SDRAM1 | F2SDRAM2
	// All selects every domain.
	All = Interconnect | Fabric
)

var domainNames = []struct {
	d    Domain
	name string
}{
	{SOC2FPGA, "soc2fpga"},
	{LWHPS2FPGA, "lwhps2fpga"},
	{FPGA2SOC, "fpga2soc"},
	{F2SDRAM0, "f2sdram0"},
	{F2SDRAM1, "f2sdram1"},
	{F2SDRAM2, "f2sdram2"},
}

func (d Domain) String() string {
	var names []string

	for _, n := range domainNames {
		if d&n.d != 0 {
			names = append(names, n.name)
			d &^= n.d
		}
	}

	if d != 0 {
		names = append(names, fmt.Sprintf("%#x", uint32(d)))
	}

	if len(names) == 0 {
		return "none"
	}

	return strings.Join(names, ",")
}

// ParseDomain parses a comma separated list of domain names, "all",
// "interconnect" and "fabric" are accepted as groups.
func ParseDomain(s string) (Domain, error) {
	return parseDomain(s, All)
}

// ParseDomain parses a comma separated list of domain names for the
// platform. Groups select only the domains present on the platform, an
// explicitly named absent domain is an error.
func (p *Platform) ParseDomain(s string) (Domain, error) {
	present := p.Domains()

	d, err := parseDomain(s, present)

	if err != nil {
		return 0, err
	}

	if extra := d &^ present; extra != 0 {
		return 0, fmt.Errorf("%s: bridge domains not present (%s)", p.Name, extra)
	}

	return d, nil
}

func parseDomain(s string, groups Domain) (d Domain, err error) {
	for _, f := range strings.Split(s, ",") {
		f = strings.ToLower(strings.TrimSpace(f))

		switch f {
		case "":
			continue
		case "all":
			d |= All & groups
			continue
		case "interconnect":
			d |= Interconnect & groups
			continue
		case "fabric":
			d |= Fabric & groups
			continue
		}

		found := false

		for _, n := range domainNames {
			if n.name == f {
				d |= n.d
				found = true
			}
		}

		if !found {
			return 0, fmt.Errorf("unknown bridge domain %q", f)
		}
	}

	return
}
