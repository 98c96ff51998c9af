package tempo

// VERSION is stamped at build time via -ldflags "-X github.com/tempobot/tempo.VERSION=v1.2.3".
var VERSION = "n/a"
