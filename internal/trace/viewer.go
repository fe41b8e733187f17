package trace

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"golang.org/x/net/html"
)

// The viewer is a single self-contained HTML page embedding the structured
// artifact verbatim in a <script type="application/json"> block. Presentation
// is intentionally minimal; the embedded data is the contract and must decode
// back to the exact Trace.

const viewerDataID = "trace-data"

var viewerTmpl = template.Must(template.New("viewer").Parse(`<!doctype html>
<html>
<head>
<meta charset="utf-8" />
<title>Goal trace: {{.File}}</title>
<style>
  body { margin: 0; font-family: ui-sans-serif, system-ui, sans-serif; display: grid; grid-template-columns: 1.4fr 1fr; height: 100vh; }
  #segments { border-right: 1px solid #e5e7eb; overflow: auto; padding: 12px; }
  #goal { overflow: auto; padding: 12px; white-space: pre-wrap; font-family: ui-monospace, monospace; font-size: 13px; }
  .seg { padding: 4px 6px; border-radius: 4px; cursor: pointer; font-family: ui-monospace, monospace; font-size: 13px; }
  .seg:hover, .seg.active { background: #f2f4f8; }
  .meta { color: #6b7280; font-size: 12px; margin-bottom: 10px; }
</style>
</head>
<body>
  <div id="segments">
    <div class="meta">{{.File}} &middot; {{.Mode}} &middot; {{.SegmentCount}} segments</div>
  </div>
  <div id="goal">(select a segment)</div>
<script id="trace-data" type="application/json">{{.Data}}</script>
<script>
  const trace = JSON.parse(document.getElementById("trace-data").textContent);
  const list = document.getElementById("segments");
  const goal = document.getElementById("goal");
  let active = null;
  trace.segments.forEach((seg, i) => {
    const el = document.createElement("div");
    el.className = "seg";
    el.id = "seg-" + i;
    el.textContent = "[" + seg.start.line + ":" + seg.start.column + " → " + seg.end.line + ":" + seg.end.column + ")  " + seg.state_key;
    el.addEventListener("click", () => {
      if (active) active.classList.remove("active");
      active = el;
      el.classList.add("active");
      const st = seg.state;
      if (st.no_goals) { goal.textContent = "no goals"; return; }
      const hyps = (st.hypotheses || []).map(h => h.name + " : " + h.type);
      goal.textContent = hyps.concat(["⊢ " + (st.target || "")]).join("\n");
    });
    list.appendChild(el);
  });
  if (location.hash.startsWith("#seg-")) {
    const el = document.getElementById(location.hash.slice(1));
    if (el) { el.click(); el.scrollIntoView(); }
  }
</script>
</body>
</html>
`))

// RenderViewer renders the viewer page for t. artifact must be the exact
// bytes produced by Encode(t); they are embedded verbatim so the viewer
// round-trips losslessly. Encode escapes '<' in JSON strings, so the payload
// can never terminate the script block early.
func RenderViewer(t *Trace, artifact []byte) ([]byte, error) {
	var buf bytes.Buffer
	err := viewerTmpl.Execute(&buf, struct {
		File         string
		Mode         string
		SegmentCount int
		Data         template.JS
	}{
		File:         t.File,
		Mode:         t.Mode,
		SegmentCount: len(t.Segments),
		Data:         template.JS(artifact),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render viewer for %s: %w", t.File, err)
	}
	return buf.Bytes(), nil
}

// DecodeViewer extracts and decodes the trace embedded in a viewer page.
func DecodeViewer(page []byte) (*Trace, error) {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("failed to parse viewer page: %w", err)
	}
	payload, ok := findScriptData(doc)
	if !ok {
		return nil, fmt.Errorf("viewer page has no %q script block", viewerDataID)
	}
	return Decode([]byte(payload))
}

func findScriptData(n *html.Node) (string, bool) {
	if n.Type == html.ElementNode && n.Data == "script" {
		for _, attr := range n.Attr {
			if attr.Key == "id" && attr.Val == viewerDataID {
				var sb strings.Builder
				for c := n.FirstChild; c != nil; c = c.NextSibling {
					if c.Type == html.TextNode {
						sb.WriteString(c.Data)
					}
				}
				return sb.String(), true
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if s, ok := findScriptData(c); ok {
			return s, true
		}
	}
	return "", false
}
