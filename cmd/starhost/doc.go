// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

/*
Starhost runs Telegram bots written in Starlark.

Each bot is described in a registry by its Telegram token and a script. When
Telegram delivers an update to /webhook/{token}, Starhost records it in the
audit sink, loads the compiled script of the bot from its cache and runs it in
a sandbox with a time limit. The script talks to the outside world only
through the bot, http and storage modules. A failing script never takes the
server down: the user gets an error message instead.

# Usage

	$ starhost [flags...]

# Registry

The registry is either a YAML file or a PostgreSQL database. A YAML registry
looks like this:

	bots:
	  - id: echo
	    token: "123456:ABC-DEF"
	    secret: webhook-secret
	    script: |
	      def on_message(msg):
	          bot.send_message(msg.chat.id, msg.text)
	  - token: "654321:XYZ"
	    script_file: weather.star
	  - token: "111111:QWE"
	    gist: 0123456789abcdef/bot.star

A bot without an id gets one derived from its token.

# Environment

The following environment variables are read when the corresponding flags
are not set:

	ADDR            address to listen on (PORT overrides it)
	REGISTRY        path to the bots YAML file or a postgres:// URL
	STORE           storage backend: memory, postgres:// or redis:// URL
	REDIS_URL       Redis URL for script update notifications
	AUDIT           audit sink: log, amqp:// or postgres:// URL
	SCRIPT_TIMEOUT  script execution time limit, like 10s
	ADMIN_TOKEN     bearer token for admin endpoints
	GH_TOKEN        GitHub token for scripts stored in gists

# Endpoints

	POST /webhook/{token}    Telegram webhook
	GET  /env                script environment documentation
	GET  /health             health check
	POST /bots/{id}/reload   reload the script of a bot (admin)
	     /debug/logs         recent log lines (admin)
	     /debug/statsviz/    runtime metrics (admin)

See the output of GET /env for the modules available to scripts.
*/
package main

import (
	_ "embed"

	"go.astrophena.name/starhost/internal/cli"
)

//go:embed doc.go
var doc []byte

func init() { cli.SetDocComment(doc) }
