package handler

import (
	"bytes"
	"html/template"
)

// Error page shown for denied, invalid, and expired callbacks. Styling keeps
// the look of the original service so returning users see a familiar page.
const errorPageHTML = `<!DOCTYPE html>
<html>
<head>
    <title>{{ .Title }} - rSpotify Bot</title>
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <style>
        body {
            font-family: 'Segoe UI', Tahoma, Geneva, Verdana, sans-serif;
            background: linear-gradient(135deg, #FF6B6B 0%, #4ECDC4 100%);
            display: flex;
            justify-content: center;
            align-items: center;
            min-height: 100vh;
            margin: 0;
            padding: 20px;
        }
        .container {
            background: white;
            border-radius: 20px;
            padding: 40px;
            max-width: 500px;
            box-shadow: 0 10px 40px rgba(0,0,0,0.3);
            text-align: center;
        }
        h1 { color: #FF6B6B; margin-bottom: 10px; font-size: 32px; }
        p { color: #333; font-size: 18px; line-height: 1.6; margin-bottom: 30px; }
        .telegram-link {
            display: inline-block;
            background: #0088cc;
            color: white;
            text-decoration: none;
            padding: 15px 30px;
            border-radius: 10px;
            font-weight: bold;
            font-size: 16px;
        }
    </style>
</head>
<body>
    <div class="container">
        <h1>{{ .Title }}</h1>
        <p>{{ .Message }}</p>
        <a href="https://t.me/{{ .BotUsername }}" class="telegram-link">Return to Telegram</a>
    </div>
</body>
</html>
`

var errorPage = template.Must(template.New("error").Parse(errorPageHTML))

func renderErrorPage(title, message, botUsername string) []byte {
	var buf bytes.Buffer
	_ = errorPage.Execute(&buf, struct {
		Title       string
		Message     string
		BotUsername string
	}{Title: title, Message: message, BotUsername: botUsername})
	return buf.Bytes()
}
