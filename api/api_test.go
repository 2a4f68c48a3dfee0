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

package api

import (
	"strings"
	"testing"
)

func TestStatusText(t *testing.T) {
	for code, want := range map[uint32]string{
		StatusOK:         "OK",
		StatusBusy:       "BUSY",
		StatusRejected:   "REJECTED",
		StatusNoResponse: "NO_RESPONSE",
		StatusError:      "ERROR",
		0x42:             "UNKNOWN(0x42)",
	} {
		if got := StatusText(code); got != want {
			t.Errorf("StatusText(%d): got %q, want %q", code, got, want)
		}
	}
}

func TestPrint(t *testing.T) {
	s := &Status{
		Platform: "agilex",
		DDRBase:  0x80000000,
		DDRSize:  0x40000000,
	}

	out := s.Print()

	for _, want := range []string{
		"Platform ...............: agilex\n",
		"DDR ....................: 0x80000000-0xc0000000\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Print() missing %q:\n%s", want, out)
		}
	}
}
