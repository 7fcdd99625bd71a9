// Copyright (c) Sony Research Inc. All rights reserved.

package utils

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestGetAgentList(t *testing.T) {
	listFile := filepath.Join(t.TempDir(), "agents.txt")
	if err := os.WriteFile(listFile, []byte("cam-host-1\n\n  cam-host-2  \n"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		source  string
		want    []string
		wantErr bool
	}{
		{name: "Comma separated list", source: "10.0.0.1,10.0.0.2", want: []string{"10.0.0.1", "10.0.0.2"}},
		{name: "Single address", source: "localhost", want: []string{"localhost"}},
		{name: "Address file", source: listFile, want: []string{"cam-host-1", "cam-host-2"}},
		{name: "Empty source", source: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := GetAgentList(tt.source)
			if (err != nil) != tt.wantErr {
				t.Fatalf("GetAgentList error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("GetAgentList = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestReadAddressListFromFile_Empty(t *testing.T) {
	listFile := filepath.Join(t.TempDir(), "empty.txt")
	if err := os.WriteFile(listFile, []byte("\n\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadAddressListFromFile(listFile); err == nil {
		t.Error("expected an error for an empty agent list file")
	}
}

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"serial":"CAM42"}`))
	}))
	defer srv.Close()

	var out struct {
		Serial string `json:"serial"`
	}
	if err := GetJSON(srv.URL, &out); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if out.Serial != "CAM42" {
		t.Errorf("serial = %q, want CAM42", out.Serial)
	}
}

func TestGetJSON_ErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"unknown bias: bias_bogus"}`))
	}))
	defer srv.Close()

	err := GetJSON(srv.URL, nil)
	if err == nil {
		t.Fatal("expected an error for a 404 response")
	}
	if want := "unknown bias: bias_bogus"; !strings.Contains(err.Error(), want) {
		t.Errorf("error = %q, want it to carry %q", err, want)
	}
}

func TestFormatTimestamp(t *testing.T) {
	if got := FormatTimestamp(0); got != "" {
		t.Errorf("FormatTimestamp(0) = %q, want empty", got)
	}
	if got := FormatTimestamp(1_700_000_000_000); got == "" {
		t.Error("FormatTimestamp returned empty for a real timestamp")
	}
}

func TestAppendWithTimestamp(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	if err := AppendWithTimestamp(dir, "out.json", []byte(`{"a":1}`)); err != nil {
		t.Fatal(err)
	}
	if err := AppendWithTimestamp(dir, "out.json", []byte(`{"b":2}`)); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "out.json"))
	if err != nil {
		t.Fatal(err)
	}
	if want := "\n{\"a\":1}\n{\"b\":2}"; string(data) != want {
		t.Errorf("file content = %q, want %q", data, want)
	}
}
