package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/mail"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/quizdesk/internal/logging"
)

func TestSendGrid_Notify(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/mail/send", r.URL.Path)
		assert.Equal(t, "Bearer sg-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sg := NewSendGrid("sg-key", "QuizDesk", mail.Address{Name: "QuizDesk", Address: "noreply@quizdesk.test"}, logging.Discard())
	sg.host = srv.URL

	err := sg.Notify(context.Background(), Message{
		To:      []mail.Address{{Name: "Ms M", Address: "m@school.test"}},
		Subject: "Evaluation finished",
		Text:    "Quiz Cells is evaluated.",
	})
	require.NoError(t, err)
	p := got["personalizations"].([]any)[0].(map[string]any)
	assert.Equal(t, "[QuizDesk] Evaluation finished", p["subject"])

	require.NoError(t, sg.Notify(context.Background(), Message{Subject: "nobody"}))
}

func TestSendGrid_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"errors":[{"message":"bad from"}]}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	sg := NewSendGrid("k", "QuizDesk", mail.Address{Address: "x@y.test"}, logging.Discard())
	sg.host = srv.URL
	err := sg.Notify(context.Background(), Message{To: []mail.Address{{Address: "a@b.test"}}, Subject: "s", Text: "t"})
	assert.ErrorContains(t, err, "status 400")
}

func TestConsole(t *testing.T) {
	var buf bytes.Buffer
	log, _ := logging.New(logging.Options{Level: "info", Format: "json", Output: &buf})
	require.NoError(t, Console{Log: log}.Notify(context.Background(), Message{
		To:      []mail.Address{{Address: "m@school.test"}},
		Subject: "done",
	}))
	assert.Contains(t, buf.String(), `"subject":"done"`)
	assert.Contains(t, buf.String(), "<m@school.test>")
}
