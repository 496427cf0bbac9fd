package webui

//nolint:misspell // CSS properties use American English spelling (color, center).
const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.ServerName}}</title>
<link rel="stylesheet" href="/style.css">
</head>
<body>
<div class="card">
<h1>{{.ServerName}}</h1>
<p>This server runs the Comcore protocol. There's nothing to see in a browser beyond invite links and shared files.</p>
</div>
</body>
</html>`

//nolint:misspell // CSS properties use American English spelling (color, center).
const joinHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.ServerName}} — Join</title>
<link rel="stylesheet" href="/style.css">
</head>
<body>
<div class="card">
{{if .Valid}}
<h1>Join {{.GroupName}}</h1>
<p>Open {{.ServerName}} and enter this invite code:</p>
<p class="code">{{.Code}}</p>
{{else}}
<h1>Invite Link</h1>
<p>{{.Message}}</p>
{{end}}
</div>
</body>
</html>`

const stylesheetCSS = `*{margin:0;padding:0;box-sizing:border-box}
body{font-family:-apple-system,BlinkMacSystemFont,"Segoe UI",Roboto,Helvetica,Arial,sans-serif;
background:#f4f5f7;display:flex;align-items:center;justify-content:center;min-height:100vh;padding:1rem}
.card{background:#fff;border-radius:8px;box-shadow:0 2px 8px rgba(0,0,0,.08);max-width:440px;width:100%;
padding:2.5rem 2rem;text-align:center}
h1{font-size:1.25rem;color:#1a1a2e;margin-bottom:.75rem}
p{font-size:.95rem;color:#555;line-height:1.5}
.code{font-family:monospace;font-size:1.1rem;letter-spacing:.1em;margin-top:.5rem;color:#1a1a2e}`
