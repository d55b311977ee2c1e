package htmlutil

import (
	"context"
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

func mustDoc(t testing.TB, markup string) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	require.NoError(t, err)
	return doc
}

func TestGetAnchors(t *testing.T) {
	doc := mustDoc(t, `<div>
		<a href="/news/1">  First
			article </a>
		<a href="https://example.org/two">Second</a>
	</div>`)
	base, err := url.Parse("https://www.acgov.org/news/index.htm")
	require.NoError(t, err)

	anchors := GetAnchors(context.Background(), base, doc.Find("a"))
	require.Equal(t, []Anchor{
		{Name: "First article", Href: "https://www.acgov.org/news/1"},
		{Name: "Second", Href: "https://example.org/two"},
	}, anchors)
}

func TestParseTable(t *testing.T) {
	doc := mustDoc(t, `<table>
		<caption>Cases by Age</caption>
		<tr><th>Age Group</th><th>Cases</th></tr>
		<tr><td>0-17</td><td>1,204</td></tr>
		<tr><td>18-49</td><td> 5,011 </td></tr>
	</table>`)

	table := ParseTable(doc.Find("table"))
	require.Equal(t, "Cases by Age", table.Caption)
	require.Equal(t, []string{"Age Group", "Cases"}, table.Header)
	require.Equal(t, [][]string{{"0-17", "1,204"}, {"18-49", "5,011"}}, table.Rows)
}

func TestParseDocumentCharset(t *testing.T) {
	// latin-1 "caf\xe9"
	body := []byte("<html><body><p>caf\xe9</p></body></html>")
	doc, err := ParseDocument(body, "text/html; charset=iso-8859-1")
	require.NoError(t, err)
	require.Equal(t, "caf\u00e9", doc.Find("p").Text())
}

func TestGetTextLineBreaks(t *testing.T) {
	doc := mustDoc(t, `<p>Redwood City -<br>Second line</p>`)
	require.Equal(t, "Redwood City -\nSecond line", GetText(doc.Find("p").Nodes[0]))
	require.Equal(t, "Redwood City - Second line", CleanText(doc.Find("p")))
}

func TestResolveURL(t *testing.T) {
	require.Equal(t, "https://www.smchealth.org/a/b", ResolveURL("https://www.smchealth.org/a/", "b"))
	require.Equal(t, "::bad", ResolveURL("https://x.org", "::bad"))
}
