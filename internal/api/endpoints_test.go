package api

import "testing"

func TestEndpoints(t *testing.T) {
	e, err := NewEndpoints("https://agent.example:8443/")
	if err != nil {
		t.Fatalf("NewEndpoints: %v", err)
	}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{
			"terminal",
			e.Terminal("10.0.0.5:9000", "bash"),
			"wss://agent.example:8443/api/v1/client/10.0.0.5:9000/process/interactive?command=bash",
		},
		{
			"raw stream",
			e.Stream("10.0.0.5:9000", "rgb", StreamParams{Display: 1, Quality: 0.5, Format: "raw"}),
			"wss://agent.example:8443/api/v1/client/10.0.0.5:9000/rd/stream/rgb?display=1&format=raw&quality=0.5",
		},
		{
			"compressed stream with keyframes",
			e.Stream("h", "mpeg1video", StreamParams{Quality: 1, Format: "raw", KeyframeInterval: 30}),
			"wss://agent.example:8443/api/v1/client/h/rd/stream/mpeg1video?display=0&kf=30&quality=1",
		},
		{
			"notifications",
			e.Notifications(),
			"wss://agent.example:8443/api/v1/server/notification",
		},
		{
			"escaped address",
			e.Terminal("a b", "cmd"),
			"wss://agent.example:8443/api/v1/client/a%20b/process/interactive?command=cmd",
		},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s:\n got  %s\n want %s", tt.name, tt.got, tt.want)
		}
	}
}

func TestEndpointsPlainHTTP(t *testing.T) {
	e, err := NewEndpoints("http://127.0.0.1:10801")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := e.Notifications(), "ws://127.0.0.1:10801/api/v1/server/notification"; got != want {
		t.Errorf("Notifications() = %q, want %q", got, want)
	}
	if _, err := NewEndpoints("ftp://x"); err == nil {
		t.Error("ftp scheme accepted")
	}
}
