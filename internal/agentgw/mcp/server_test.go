package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"interactworld.ai/internal/agentgw/bridge"
	"interactworld.ai/internal/protocol"
)

type stubBridge struct {
	sent []string
	keys []string
}

func (b *stubBridge) GetStatus(_ context.Context, key string) (bridge.Status, error) {
	b.keys = append(b.keys, key)
	return bridge.Status{WorldWSURL: "ws://example.invalid/v1/ws"}, nil
}

func (b *stubBridge) GetTarget(_ context.Context, _ string, _ bridge.GetTargetOpts) (bridge.TargetResult, error) {
	return bridge.TargetResult{AgentID: "A1", Target: &bridge.Target{TargetID: "front_door", Prompt: "Open Door"}}, nil
}

func (b *stubBridge) GetEvents(_ context.Context, _ string, since uint64, _ int) (bridge.GetEventsResult, error) {
	return bridge.GetEventsResult{NextCursor: since}, nil
}

func (b *stubBridge) Send(_ context.Context, _ string, cmd string, args bridge.CmdArgs) (bridge.CmdResult, error) {
	b.sent = append(b.sent, cmd+":"+args.TargetID)
	return bridge.CmdResult{Sent: true, CmdID: "C_1", AgentID: "A1"}, nil
}

func (b *stubBridge) Disconnect(context.Context, string) error { return nil }

func rpcPost(t *testing.T, base string, payload any, headers map[string]string) (int, rpcResponse) {
	t.Helper()
	b, _ := json.Marshal(payload)
	req, _ := http.NewRequest(http.MethodPost, base+"/mcp", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer res.Body.Close()
	var out rpcResponse
	if res.StatusCode == http.StatusOK {
		if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
	return res.StatusCode, out
}

func call(name string, args any) map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "call_tool",
		"params":  map[string]any{"name": name, "arguments": args},
	}
}

func TestMCP_Initialize_And_ListTools(t *testing.T) {
	s, err := NewServer(Config{Bridge: &stubBridge{}})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	_, initResp := rpcPost(t, ts.URL, map[string]any{"jsonrpc": "2.0", "id": 1, "method": "initialize"}, nil)
	if initResp.Error != nil {
		t.Fatalf("initialize error: %+v", initResp.Error)
	}
	rm, _ := initResp.Result.(map[string]any)
	if rm["protocolVersion"] != mcpProtocolVersion {
		t.Fatalf("protocolVersion=%v", rm["protocolVersion"])
	}

	for _, method := range []string{"list_tools", "tools/list"} {
		_, lt := rpcPost(t, ts.URL, map[string]any{"jsonrpc": "2.0", "id": 2, "method": method}, nil)
		rm2, _ := lt.Result.(map[string]any)
		list, _ := rm2["tools"].([]any)
		if len(list) != len(tools) {
			t.Fatalf("%s: tools=%d want %d", method, len(list), len(tools))
		}
		first, _ := list[0].(map[string]any)
		if first["name"] != toolBegin {
			t.Fatalf("tools not sorted: first=%v", first["name"])
		}
	}
}

func TestMCP_CallToolRoutesCommands(t *testing.T) {
	br := &stubBridge{}
	s, _ := NewServer(Config{Bridge: br})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	_, resp := rpcPost(t, ts.URL, call(toolBegin, map[string]any{"target_id": "front_door"}), nil)
	if resp.Error != nil {
		t.Fatalf("begin: %+v", resp.Error)
	}
	_, resp = rpcPost(t, ts.URL, call(toolEnd, nil), nil)
	if resp.Error != nil {
		t.Fatalf("end: %+v", resp.Error)
	}
	if len(br.sent) != 2 || br.sent[0] != protocol.CmdBegin+":front_door" || br.sent[1] != protocol.CmdEnd+":" {
		t.Fatalf("sent=%v", br.sent)
	}

	_, resp = rpcPost(t, ts.URL, call(toolGetTarget, map[string]any{"wait_change": "yes"}), nil)
	if resp.Error == nil || resp.Error.Code != codeToolFailed {
		t.Fatalf("expected bad arguments error, got %+v", resp.Error)
	}

	_, resp = rpcPost(t, ts.URL, call("nope", map[string]any{}), nil)
	if resp.Error == nil || resp.Error.Code != codeMethodNotFound {
		t.Fatalf("expected tool not found, got %+v", resp.Error)
	}

	_, resp = rpcPost(t, ts.URL, map[string]any{"jsonrpc": "2.0", "id": 3, "method": "call_tool"}, nil)
	if resp.Error == nil || resp.Error.Code != codeInvalidParams {
		t.Fatalf("expected invalid params, got %+v", resp.Error)
	}
}

func TestMCP_RateLimitPerSession(t *testing.T) {
	s, _ := NewServer(Config{Bridge: &stubBridge{}, CallsPerSecond: 0.001, CallBurst: 2})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	a := map[string]string{headerAgentID: "a"}
	for i := 0; i < 2; i++ {
		if _, resp := rpcPost(t, ts.URL, call(toolGetStatus, nil), a); resp.Error != nil {
			t.Fatalf("call %d: %+v", i, resp.Error)
		}
	}
	if _, resp := rpcPost(t, ts.URL, call(toolGetStatus, nil), a); resp.Error == nil || resp.Error.Code != codeRateLimited {
		t.Fatalf("expected rate limit, got %+v", resp.Error)
	}
	if _, resp := rpcPost(t, ts.URL, call(toolGetStatus, nil), map[string]string{headerAgentID: "b"}); resp.Error != nil {
		t.Fatalf("other session limited: %+v", resp.Error)
	}
}

func TestMCP_HMACRequiredAndReplayRejected(t *testing.T) {
	br := &stubBridge{}
	s, _ := NewServer(Config{Bridge: br, HMACSecret: "topsecret"})
	now := time.UnixMilli(1700000000000)
	s.now = func() time.Time { return now }
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	payload := call(toolGetStatus, nil)
	if code, _ := rpcPost(t, ts.URL, payload, nil); code != http.StatusUnauthorized {
		t.Fatalf("unsigned: status=%d", code)
	}

	body, _ := json.Marshal(payload)
	tsStr := strconv.FormatInt(now.UnixMilli(), 10)
	h := map[string]string{
		headerAgentID:   "bot_7",
		headerTS:        tsStr,
		headerNonce:     "n-1",
		headerSignature: signHMAC([]byte("topsecret"), canonicalStringV2(tsStr, "POST", "/mcp", "bot_7", "n-1", body)),
	}
	if code, resp := rpcPost(t, ts.URL, payload, h); code != http.StatusOK || resp.Error != nil {
		t.Fatalf("signed: status=%d err=%+v", code, resp.Error)
	}
	if len(br.keys) != 1 || br.keys[0] != "bot_7" {
		t.Fatalf("session keys=%v", br.keys)
	}
	if code, _ := rpcPost(t, ts.URL, payload, h); code != http.StatusUnauthorized {
		t.Fatalf("replay: status=%d", code)
	}
}
