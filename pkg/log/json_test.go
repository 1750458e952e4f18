// Copyright 2025 The gVisor Authors.
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

package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestLevelJSON(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want Level
	}{
		{`"warning"`, Warning},
		{`"info"`, Info},
		{`"debug"`, Debug},
		{`0`, Warning},
		{`1`, Info},
		{`2`, Debug},
	} {
		var l Level
		if err := json.Unmarshal([]byte(tc.in), &l); err != nil {
			t.Errorf("Unmarshal(%s): %v", tc.in, err)
			continue
		}
		if l != tc.want {
			t.Errorf("Unmarshal(%s) = %v, want %v", tc.in, l, tc.want)
		}
		b, err := json.Marshal(l)
		if err != nil {
			t.Fatalf("Marshal(%v): %v", l, err)
		}
		if !strings.HasPrefix(string(b), `"`) {
			t.Errorf("Marshal(%v) = %s, want a name", l, b)
		}
	}
}

func TestLevelJSONInvalid(t *testing.T) {
	for _, in := range []string{`3`, `-1`, `"fatal"`, `true`} {
		var l Level
		if err := json.Unmarshal([]byte(in), &l); err == nil {
			t.Errorf("Unmarshal(%s) = %v, want an error", in, l)
		}
	}
	if _, err := Level(7).MarshalJSON(); err == nil {
		t.Errorf("MarshalJSON of an unknown level succeeded")
	}
}

func TestJSONEmitter(t *testing.T) {
	var buf bytes.Buffer
	e := JSONEmitter{&Writer{Next: &buf}}
	ts := time.Date(2025, time.March, 7, 13, 4, 5, 0, time.UTC)
	e.Emit(0, Info, ts, "cpu%d: root %s active", 2, "0x1000")

	var got jsonLog
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("Unmarshal(%q): %v", buf.String(), err)
	}
	if got.Msg != "cpu2: root 0x1000 active" || got.Level != Info || !got.Time.Equal(ts) {
		t.Errorf("record = %+v", got)
	}
	if !strings.HasPrefix(got.Source, "json_test.go:") {
		t.Errorf("source = %q, want this file", got.Source)
	}
	if !strings.HasSuffix(buf.String(), "}\n") {
		t.Errorf("record %q not newline terminated", buf.String())
	}
}
