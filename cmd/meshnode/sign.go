package main

import "crypto/ed25519"

func signRaw(priv ed25519.PrivateKey, msg []byte) []byte {
	return ed25519.Sign(priv, msg)
}
