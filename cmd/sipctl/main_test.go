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
	"testing"

	"github.com/transparency-dev/socfpga-firmware/api"
	sipapi "github.com/transparency-dev/socfpga-firmware/api/rpc"
)

func TestCheck(t *testing.T) {
	for _, test := range []struct {
		name string
		res  sipapi.Result
		want string
	}{
		{
			name: "ok",
			res:  sipapi.Result{Status: api.StatusOK},
		}, {
			name: "rejected",
			res:  sipapi.Result{Status: api.StatusRejected, Message: "random: request rejected"},
			want: "status REJECTED: random: request rejected",
		}, {
			name: "mailbox error",
			res:  sipapi.Result{Status: api.StatusError, MailboxError: 0x3ff},
			want: "status ERROR, mailbox error 0x3ff",
		}, {
			name: "fatal",
			res:  sipapi.Result{Status: api.StatusError, Fatal: true, Message: "bridge reset timeout"},
			want: "fatal status ERROR: bridge reset timeout",
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			err := check(&test.res)

			var got string
			if err != nil {
				got = err.Error()
			}
			if got != test.want {
				t.Errorf("Got %q, want %q", got, test.want)
			}
		})
	}
}

func TestParseUint(t *testing.T) {
	for in, want := range map[string]uint64{
		"4096":   4096,
		"0x1000": 0x1000,
		"0o10":   8,
	} {
		got, err := parseUint(in)
		if err != nil || got != want {
			t.Errorf("parseUint(%q): got %d, %v, want %d", in, got, err, want)
		}
	}

	if _, err := parseUint("-1"); err == nil {
		t.Errorf("parseUint accepted a negative number")
	}
}
