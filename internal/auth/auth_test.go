package auth_test

import (
	"bufio"
	"crypto/hmac"
	"crypto/sha256"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alia5/joybridge/apitypes"
	"github.com/Alia5/joybridge/internal/auth"
)

func TestDeriveKey(t *testing.T) {
	tests := []struct {
		name     string
		password string
		want     []byte
		wantErr  error
	}{
		{
			name:     "normal password",
			password: "password123",
			want:     []byte{0x94, 0x50, 0x29, 0x55, 0x1, 0xd7, 0x3, 0xf, 0x4, 0x61, 0xf, 0x81, 0x6a, 0xdf, 0x43, 0x1c, 0xaf, 0x8f, 0xc8, 0x21, 0xd4, 0xc1, 0x2f, 0x2f, 0x21, 0x2c, 0x1b, 0xf8, 0x64, 0x46, 0x9, 0x82},
		},
		{
			name:     "single character",
			password: "1",
			want:     []byte{0xfe, 0xdf, 0xdf, 0x4d, 0xab, 0xd2, 0x5d, 0x9f, 0xfd, 0x97, 0x96, 0xec, 0x76, 0xd2, 0xa2, 0xec, 0x2, 0x4f, 0xbf, 0xeb, 0x17, 0x8c, 0x6, 0x13, 0xed, 0x4f, 0x10, 0x9e, 0x4d, 0xef, 0xd1, 0xd2},
		},
		{
			name:     "empty",
			password: "",
			wantErr:  auth.ErrEmptyPassword,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := auth.DeriveKey(tt.password)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, key)
		})
	}
}

func TestDeriveSessionKey(t *testing.T) {
	key := make([]byte, 32)
	server := make([]byte, 32)
	client := make([]byte, 32)
	for i := range key {
		key[i], server[i], client[i] = byte(i), byte(i+10), byte(i+20)
	}
	a := auth.DeriveSessionKey(key, server, client)
	assert.Len(t, a, 32)
	assert.Equal(t, a, auth.DeriveSessionKey(key, server, client))
	client[0] = 99
	assert.NotEqual(t, a, auth.DeriveSessionKey(key, server, client))
}

// fakeServer answers one handshake on conn.
func fakeServer(t *testing.T, conn net.Conn, key []byte, reply func(ok bool) []byte) {
	t.Helper()
	buf := make([]byte, len(auth.HandshakeMagic)+auth.NonceSize+sha256.Size)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return
	}
	nonce := buf[len(auth.HandshakeMagic) : len(auth.HandshakeMagic)+auth.NonceSize]
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte("VIIPER-Auth-v1"))
	mac.Write(nonce)
	ok := hmac.Equal(mac.Sum(nil), buf[len(auth.HandshakeMagic)+auth.NonceSize:])
	_, _ = conn.Write(reply(ok))
	_ = conn.Close()
}

func TestClientHandshake(t *testing.T) {
	key, err := auth.DeriveKey("secret")
	require.NoError(t, err)

	serverNonce := make([]byte, auth.NonceSize)
	for i := range serverNonce {
		serverNonce[i] = byte(i)
	}

	tests := []struct {
		name      string
		reply     func(ok bool) []byte
		wantErr   string
		wantNonce bool
	}{
		{
			name: "accepted",
			reply: func(ok bool) []byte {
				if !ok {
					return nil
				}
				return append([]byte("OK\x00"), serverNonce...)
			},
			wantNonce: true,
		},
		{
			name:    "problem reply",
			reply:   func(bool) []byte { return []byte(`{"status":401,"title":"Unauthorized","detail":"nope"}` + "\n") },
			wantErr: "401 Unauthorized: nope",
		},
		{
			name:    "closed without reply",
			reply:   func(bool) []byte { return nil },
			wantErr: "invalid password",
		},
		{
			name:    "garbage",
			reply:   func(bool) []byte { return []byte("what?") },
			wantErr: "invalid handshake response",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, server := net.Pipe()
			defer client.Close()
			go fakeServer(t, server, key, tt.reply)

			cn, sn, err := auth.ClientHandshake(bufio.NewReader(client), client, key)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, cn, auth.NonceSize)
			assert.Equal(t, serverNonce, sn)
		})
	}
}

func TestHandshakeReturnsProblem(t *testing.T) {
	key, _ := auth.DeriveKey("secret")
	client, server := net.Pipe()
	defer client.Close()
	go fakeServer(t, server, key, func(bool) []byte { return []byte(`{"status":403,"title":"Forbidden"}`) })

	_, _, err := auth.ClientHandshake(bufio.NewReader(client), client, key)
	var apiErr *apitypes.Problem
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 403, apiErr.Status)
}

func TestConnRoundTrip(t *testing.T) {
	key, err := auth.DeriveKey("test123")
	require.NoError(t, err)
	other, err := auth.DeriveKey("123test")
	require.NoError(t, err)

	tests := []struct {
		name      string
		serverKey []byte
		wantErr   string
	}{
		{"same key", key, ""},
		{"different key", other, "message authentication failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, s := net.Pipe()
			defer c.Close()
			defer s.Close()

			wc, err := auth.WrapConn(c, key)
			require.NoError(t, err)
			ws, err := auth.WrapConn(s, tt.serverKey)
			require.NoError(t, err)

			go func() {
				_, _ = wc.Write([]byte("hello"))
				_, _ = wc.Write([]byte("world"))
			}()

			buf := make([]byte, 5)
			_, err = io.ReadFull(ws, buf)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "hello", string(buf))
			_, err = io.ReadFull(ws, buf)
			require.NoError(t, err)
			assert.Equal(t, "world", string(buf))
		})
	}
}

func TestWrapConnBadKey(t *testing.T) {
	c, s := net.Pipe()
	defer c.Close()
	defer s.Close()
	_, err := auth.WrapConn(c, []byte{1, 2, 3})
	assert.ErrorContains(t, err, "bad key length")
}
