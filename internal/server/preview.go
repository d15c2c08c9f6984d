package server

import (
	"context"
	"io"
	"strings"

	"github.com/a-h/templ"
)

// Element ids the reload script looks up.
const (
	stylesID = "sfclive-styles"
	rootID   = "sfclive-root"
)

// baseStyles reset browser defaults before the component's scoped sheet.
const baseStyles = `* {
  margin: 0;
  padding: 0;
  box-sizing: border-box;
}
body {
  font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
  line-height: 1.6;
  color: #333;
}`

// reloadScript applies websocket updates to the document body.
const reloadScript = `(function () {
  var proto = location.protocol === "https:" ? "wss://" : "ws://";
  var ws = new WebSocket(proto + location.host + "/ws");
  ws.onmessage = function (e) {
    var msg = JSON.parse(e.data);
    if (msg.type !== "update") return;
    document.getElementById("sfclive-styles").textContent = msg.css || "";
    document.getElementById("sfclive-root").innerHTML = msg.html || "";
  };
})();`

// PreviewPage is the content of a standalone preview document.
type PreviewPage struct {
	Title string
	// CSS is the published scoped style sheet.
	CSS string
	// HTML is the mounted component markup. It is written verbatim.
	HTML string
	// Reload adds a script that follows websocket updates.
	Reload bool
}

// PreviewDocument composes reset styles, the component's scoped styles and
// its markup into one HTML document.
func PreviewDocument(page PreviewPage) templ.Component {
	head := templ.Join(
		rawTextElement("style", nil, "\n"+baseStyles+"\n"),
		rawTextElement("style", attr{"id", stylesID}, page.CSS),
	)
	body := templ.Join(
		element("div", attr{"id", rootID}, templ.Raw(page.HTML)),
		newline,
		reloader(page.Reload),
	)

	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return documentLayout(page.Title, head).Render(templ.WithChildren(ctx, body), w)
	})
}

// documentLayout writes the document shell around head and the children
// carried by the render context.
func documentLayout(title string, head templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		children := templ.GetChildren(ctx)
		ctx = templ.ClearChildren(ctx)

		if _, err := io.WriteString(w, "<!DOCTYPE html>\n<html>\n<head>\n"+
			`<meta charset="utf-8">`+"\n"+
			`<meta name="viewport" content="width=device-width, initial-scale=1.0">`+"\n"+
			"<title>"+templ.EscapeString(title)+"</title>\n"); err != nil {
			return err
		}
		if err := head.Render(ctx, w); err != nil {
			return err
		}
		if _, err := io.WriteString(w, "</head>\n<body>\n"); err != nil {
			return err
		}
		if err := children.Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, "</body>\n</html>\n")
		return err
	})
}

func reloader(enabled bool) templ.Component {
	if !enabled {
		return templ.NopComponent
	}
	return rawTextElement("script", nil, reloadScript)
}

var newline = templ.Raw("\n")

// attr is one attribute; a nil attr writes none.
type attr []string

func (a attr) render(w io.Writer) error {
	if len(a) < 2 {
		return nil
	}
	_, err := io.WriteString(w, " "+a[0]+`="`+templ.EscapeString(a[1])+`"`)
	return err
}

// element wraps children in a tag.
func element(tag string, a attr, children ...templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, "<"+tag); err != nil {
			return err
		}
		if err := a.render(w); err != nil {
			return err
		}
		if _, err := io.WriteString(w, ">"); err != nil {
			return err
		}
		if err := templ.Join(children...).Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, "</"+tag+">")
		return err
	})
}

// rawTextElement writes a style or script element followed by a newline.
// The text is escaped so that it cannot close the element early.
func rawTextElement(tag string, a attr, text string) templ.Component {
	return templ.Join(element(tag, a, templ.Raw(rawText(text))), newline)
}

// rawText keeps text inside a raw-text element from closing it early.
func rawText(s string) string {
	return strings.ReplaceAll(s, "</", `<\/`)
}
