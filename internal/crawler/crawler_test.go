package crawler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleMirrorList = `
<html><body><table><tbody>
<tr><td class="newregion">Africa</td></tr>
<tr>
  <td><img alt="ng" src="/flags/ng.png"/>Nigeria</td>
  <td><a href="https://mirror1.example.org/">HTTP</a></td>
</tr>
<tr>
  <td><img alt="ng" src="/flags/ng.png"/>Nigeria</td>
  <td><a href="https://mirror2.example.org/">HTTP</a></td>
</tr>
<tr>
  <td><img alt="fr" src="/flags/fr.png"/>France</td>
  <td><a href="https://blocked.example.org/">HTTP</a></td>
</tr>
</tbody></table></body></html>
`

func TestCrawl_FlattensAndExcludes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleMirrorList))
	}))
	defer srv.Close()

	c := New(srv.URL, []string{"blocked.example.org"}, srv.Client())
	mirrors, err := c.Crawl(context.Background())
	require.NoError(t, err)
	require.Len(t, mirrors, 2)
	assert.Equal(t, "mirror1.example.org", mirrors[0].ID)
	assert.Equal(t, "ng", mirrors[0].CountryCode)
	assert.Equal(t, "mirror2.example.org", mirrors[1].ID)
}

func TestCrawl_UpstreamErrorRetried(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(srv.URL, nil, srv.Client())
	c.retryWait = 0
	_, err := c.Crawl(context.Background())
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
}
