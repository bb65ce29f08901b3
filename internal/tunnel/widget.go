package tunnel

import (
	"fmt"
	"strings"
)

// authCookieName gates preview access. The worker refuses requests
// without it so an exposed sandbox is not an open proxy.
const authCookieName = "hatchery_preview"

// WidgetScript renders the edge worker deployed in front of an exposed
// workload. It checks the preview cookie, proxies the request through
// to the tunnel origin and injects the feedback widget into HTML
// responses.
func WidgetScript(hostname, slug string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `export default {
  async fetch(request, env, ctx) {
    const url = new URL(request.url);

    if (url.pathname === "/__hatchery/health") {
      return new Response("ok", { status: 200 });
    }

    const cookies = request.headers.get("Cookie") || "";
    const token = url.searchParams.get("preview_token");
    if (token) {
      url.searchParams.delete("preview_token");
      const headers = new Headers({ Location: url.toString() });
      headers.append("Set-Cookie",
        "%[1]s=" + token + "; Path=/; HttpOnly; Secure; SameSite=Lax");
      return new Response(null, { status: 302, headers });
    }
    if (!cookies.includes("%[1]s=")) {
      return new Response("preview access requires a token", { status: 403 });
    }

    const upstream = await fetch(request);
    const type = upstream.headers.get("Content-Type") || "";
    if (!type.includes("text/html")) {
      return upstream;
    }

    const widget = '<script>window.__hatchery={slug:"%[2]s",host:"%[3]s"};</scr' + 'ipt>' +
      '<script src="https://%[3]s/__hatchery/widget.js" defer></scr' + 'ipt>';
    const rewriter = new HTMLRewriter().on("body", {
      element(el) { el.append(widget, { html: true }); },
    });
    return rewriter.transform(upstream);
  },
};
`, authCookieName, slug, hostname)
	return b.String()
}
