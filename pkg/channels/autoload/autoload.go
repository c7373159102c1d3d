// Package autoload registers every built-in channel factory.
package autoload

import (
	_ "replygen/pkg/channels/telegram"
	_ "replygen/pkg/channels/web"
)
