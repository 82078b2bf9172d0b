package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"

	"github.com/kozaktomas/face-engine/internal/database"
)

func TestLivenessHandler_Challenge(t *testing.T) {
	env := newTestEnv(t)

	for range 20 {
		recorder := httptest.NewRecorder()
		env.liveness.Challenge(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/live/challenge", nil))

		assertStatusCode(t, recorder, http.StatusOK)
		var resp ChallengeResponse
		parseJSONResponse(t, recorder, &resp)
		if !slices.Contains(livenessChallenges, resp.Challenge) {
			t.Fatalf("unexpected challenge %q", resp.Challenge)
		}
		if resp.ExpiresIn != 15 {
			t.Errorf("expected expires_in 15, got %d", resp.ExpiresIn)
		}
	}
}

func TestLivenessHandler_Verify_BadRequests(t *testing.T) {
	tests := []struct {
		name       string
		req        func(t *testing.T) *http.Request
		wantStatus int
	}{
		{"raw body", func(t *testing.T) *http.Request {
			return rawImageRequest(http.MethodPost, "/api/v1/live/verify", solidPNG(t, gray))
		}, http.StatusBadRequest},
		{"unknown challenge", func(t *testing.T) *http.Request {
			return framesRequest(t, "/api/v1/live/verify", map[string]string{"challenge": "wave"},
				map[string][]byte{"frame_a": solidPNG(t, white), "frame_b": solidPNG(t, gray)})
		}, http.StatusBadRequest},
		{"missing challenge", func(t *testing.T) *http.Request {
			return framesRequest(t, "/api/v1/live/verify", nil,
				map[string][]byte{"frame_a": solidPNG(t, white), "frame_b": solidPNG(t, gray)})
		}, http.StatusBadRequest},
		{"missing frame", func(t *testing.T) *http.Request {
			return framesRequest(t, "/api/v1/live/verify", map[string]string{"challenge": "blink"},
				map[string][]byte{"frame_a": solidPNG(t, white)})
		}, http.StatusBadRequest},
		{"undecodable frame", func(t *testing.T) *http.Request {
			return framesRequest(t, "/api/v1/live/verify", map[string]string{"challenge": "blink"},
				map[string][]byte{"frame_a": solidPNG(t, white), "frame_b": []byte("garbage")})
		}, http.StatusBadRequest},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			recorder := httptest.NewRecorder()
			env.liveness.Verify(recorder, tc.req(t))

			assertStatusCode(t, recorder, tc.wantStatus)
			recent, _ := env.store.RecentVerifications(context.Background(), 10)
			if len(recent) != 0 {
				t.Errorf("rejected request must not be audited, got %d rows", len(recent))
			}
		})
	}
}

func TestLivenessHandler_Verify_StillImageFails(t *testing.T) {
	env := newTestEnv(t)
	env.faces.Enroll(httptest.NewRecorder(), rawImageRequest(http.MethodPost, "/api/v1/enroll?label=alice", solidPNG(t, gray)))

	recorder := httptest.NewRecorder()
	env.liveness.Verify(recorder, framesRequest(t, "/api/v1/live/verify", map[string]string{"challenge": "blink"},
		map[string][]byte{"frame_a": solidPNG(t, gray), "frame_b": solidPNG(t, gray)}))

	assertStatusCode(t, recorder, http.StatusUnauthorized)
	recent, _ := env.store.RecentVerifications(context.Background(), 10)
	if len(recent) != 0 {
		t.Errorf("failed liveness must not reach identification, got %d audit rows", len(recent))
	}
}

func TestLivenessHandler_Verify(t *testing.T) {
	tests := []struct {
		name       string
		hint       string
		enroll     bool
		wantStatus int
		wantOK     bool
		wantLabel  string
	}{
		{"live and enrolled", "", true, http.StatusOK, true, "alice"},
		{"matching hint", "alice", true, http.StatusOK, true, "alice"},
		{"other hint", "bob", true, http.StatusUnauthorized, false, "alice"},
		{"nobody enrolled", "", false, http.StatusUnauthorized, false, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			if tc.enroll {
				env.faces.Enroll(httptest.NewRecorder(), rawImageRequest(http.MethodPost, "/api/v1/enroll?label=alice", solidPNG(t, gray)))
			}

			values := map[string]string{"challenge": "turn_left"}
			if tc.hint != "" {
				values["label"] = tc.hint
			}
			recorder := httptest.NewRecorder()
			env.liveness.Verify(recorder, framesRequest(t, "/api/v1/live/verify", values,
				map[string][]byte{"frame_a": solidPNG(t, white), "frame_b": solidPNG(t, gray)}))

			assertStatusCode(t, recorder, tc.wantStatus)
			var resp LiveVerifyResponse
			parseJSONResponse(t, recorder, &resp)
			if resp.OK != tc.wantOK || resp.Label != tc.wantLabel || resp.Challenge != "turn_left" {
				t.Errorf("unexpected response %+v", resp)
			}
			if resp.FrameDifference <= 10 {
				t.Errorf("expected frame difference above 10, got %f", resp.FrameDifference)
			}
			if !tc.wantOK && resp.Error != "face mismatch" {
				t.Errorf("expected face mismatch error, got %q", resp.Error)
			}

			recent, err := env.store.RecentVerifications(context.Background(), 10)
			if err != nil {
				t.Fatalf("failed to list verifications: %v", err)
			}
			if len(recent) != 1 {
				t.Fatalf("expected 1 audit row, got %d", len(recent))
			}
			want := database.Verification{Label: tc.wantLabel, Matched: tc.wantOK, Challenge: "turn_left"}
			if recent[0].Label != want.Label || recent[0].Matched != want.Matched || recent[0].Challenge != want.Challenge {
				t.Errorf("audit row %+v; want %+v", recent[0], want)
			}
			if recent[0].ID != resp.VerificationID {
				t.Errorf("response id %q does not match audit id %q", resp.VerificationID, recent[0].ID)
			}
		})
	}
}

func TestLivenessHandler_Verify_AuditFailure(t *testing.T) {
	env := newTestEnv(t)
	env.faces.Enroll(httptest.NewRecorder(), rawImageRequest(http.MethodPost, "/api/v1/enroll?label=alice", solidPNG(t, gray)))
	env.store.VerifyError = database.ErrWrite

	recorder := httptest.NewRecorder()
	env.liveness.Verify(recorder, framesRequest(t, "/api/v1/live/verify", map[string]string{"challenge": "blink"},
		map[string][]byte{"frame_a": solidPNG(t, white), "frame_b": solidPNG(t, gray)}))

	assertStatusCode(t, recorder, http.StatusOK)
	var resp LiveVerifyResponse
	parseJSONResponse(t, recorder, &resp)
	if !resp.OK || resp.VerificationID != "" {
		t.Errorf("expected a match without verification id, got %+v", resp)
	}
}
