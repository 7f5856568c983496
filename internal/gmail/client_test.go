package gmail

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// newTestClient points a Client at an httptest server standing in for the
// Gmail REST API.
func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(context.Background(), nil,
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return c
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestClient_ListMessageIDsPaginates(t *testing.T) {
	var requests []map[string]string

	mux := http.NewServeMux()
	mux.HandleFunc("/gmail/v1/users/me/messages", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		requests = append(requests, map[string]string{
			"q":          q.Get("q"),
			"maxResults": q.Get("maxResults"),
			"pageToken":  q.Get("pageToken"),
		})

		if q.Get("pageToken") == "" {
			writeJSON(t, w, &gmail.ListMessagesResponse{
				Messages:      []*gmail.Message{{Id: "a"}, {Id: "b"}},
				NextPageToken: "p2",
			})
			return
		}
		writeJSON(t, w, &gmail.ListMessagesResponse{
			Messages: []*gmail.Message{{Id: "c"}, {Id: "d"}},
		})
	})

	ids, err := newTestClient(t, mux).ListMessageIDs(context.Background(), "is:unread", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids)

	require.Len(t, requests, 2)
	assert.Equal(t, "is:unread", requests[0]["q"])
	assert.Equal(t, "3", requests[0]["maxResults"])
	assert.Equal(t, "", requests[0]["pageToken"])
	assert.Equal(t, "1", requests[1]["maxResults"])
	assert.Equal(t, "p2", requests[1]["pageToken"])
}

func TestClient_ListMessageIDsStopsAtLastPage(t *testing.T) {
	calls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/gmail/v1/users/me/messages", func(w http.ResponseWriter, r *http.Request) {
		calls++
		writeJSON(t, w, &gmail.ListMessagesResponse{Messages: []*gmail.Message{{Id: "only"}}})
	})

	ids, err := newTestClient(t, mux).ListMessageIDs(context.Background(), "", 50)
	require.NoError(t, err)
	assert.Equal(t, []string{"only"}, ids)
	assert.Equal(t, 1, calls)
}

func TestClient_GetMessageMetadata(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/gmail/v1/users/me/messages/m1", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "metadata", q.Get("format"))
		assert.Equal(t, MetadataHeaders, q["metadataHeaders"])
		writeJSON(t, w, metadataMessage("m1", "t1", "From", "a@x.com", "Subject", "Hi"))
	})

	msg, err := newTestClient(t, mux).GetMessage(context.Background(), "m1", FormatMetadata)
	require.NoError(t, err)
	assert.Equal(t, "m1", msg.Id)

	decoded, err := Decode(msg)
	require.NoError(t, err)
	assert.Equal(t, "Hi", decoded.Subject)
}

func TestClient_GetMessageFull(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/gmail/v1/users/me/messages/m1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "full", r.URL.Query().Get("format"))
		assert.Empty(t, r.URL.Query()["metadataHeaders"])
		writeJSON(t, w, &gmail.Message{Id: "m1", Payload: textPart("text/plain", "hello")})
	})

	msg, err := newTestClient(t, mux).GetMessage(context.Background(), "m1", FormatFull)
	require.NoError(t, err)

	decoded, err := Decode(msg)
	require.NoError(t, err)
	assert.Equal(t, "hello", decoded.Body)
}

func TestClient_ListLabels(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/gmail/v1/users/me/labels", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, &gmail.ListLabelsResponse{Labels: []*gmail.Label{{Id: "INBOX", Name: "INBOX"}}})
	})

	labels, err := newTestClient(t, mux).ListLabels(context.Background())
	require.NoError(t, err)
	require.Len(t, labels, 1)
	assert.Equal(t, "INBOX", labels[0].Id)
}

func TestClient_Send(t *testing.T) {
	var received gmail.Message

	mux := http.NewServeMux()
	mux.HandleFunc("/gmail/v1/users/me/messages/send", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		writeJSON(t, w, &gmail.Message{Id: "new-1", ThreadId: received.ThreadId})
	})

	encoded, err := Encode(&OutgoingMessage{To: "a@x.com", Subject: "s", Body: "b", ThreadID: "t-5"})
	require.NoError(t, err)

	sent, err := newTestClient(t, mux).Send(context.Background(), encoded)
	require.NoError(t, err)
	assert.Equal(t, "new-1", sent.Id)
	assert.Equal(t, "t-5", sent.ThreadId)
	assert.Equal(t, encoded.Raw, received.Raw)
	assert.Equal(t, "t-5", received.ThreadId)
}

func TestClient_RemoteCallError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/gmail/v1/users/me/messages/gone", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":404,"message":"Requested entity was not found."}}`))
	})

	_, err := newTestClient(t, mux).GetMessage(context.Background(), "gone", FormatFull)
	require.Error(t, err)

	var rce *RemoteCallError
	require.ErrorAs(t, err, &rce)
	assert.Equal(t, "messages.get", rce.Op)

	var apiErr *googleapi.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Code)
}
