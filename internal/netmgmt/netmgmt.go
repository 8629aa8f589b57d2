// Package netmgmt builds local replies to ISO 8583 network-management
// messages (MTI beginning with "08") without touching the switch's
// acquirer/issuer forwarding path.
package netmgmt

import (
	"fmt"
	"strings"
	"time"

	"github.com/npsb/npswitch/internal/iso8583"
)

// acceptedInfoCodes are the field-70 values the responder treats as
// supported, yielding response code "00" rather than "96".
var acceptedInfoCodes = map[string]struct{}{
	"001": {},
	"002": {},
	"301": {},
	"162": {},
}

// IsNetworkManagement reports whether mti begins with "08".
func IsNetworkManagement(mti string) bool {
	return strings.HasPrefix(mti, "08")
}

// BuildReply constructs the stateless local reply to a network-management
// request. now supplies field 7 when the request omits it.
func BuildReply(req *iso8583.Message, now time.Time) (*iso8583.Message, error) {
	replyMTI, err := incrementFunctionDigit(req.MTI)
	if err != nil {
		return nil, err
	}

	reply := iso8583.New(replyMTI)

	if v, ok := req.Get(7); ok {
		reply.Set(7, v)
	} else {
		reply.Set(7, []byte(now.UTC().Format("0102150405")))
	}

	if v, ok := req.Get(11); ok {
		reply.Set(11, v)
	} else {
		reply.Set(11, []byte("000000"))
	}

	infoCode, present := req.Get(70)
	trimmed := strings.TrimSpace(string(infoCode))
	if !present {
		reply.Set(70, []byte("000"))
		reply.Set(39, []byte("00"))
		return reply, nil
	}
	reply.Set(70, infoCode)

	if _, ok := acceptedInfoCodes[trimmed]; ok {
		reply.Set(39, []byte("00"))
	} else {
		reply.Set(39, []byte("96"))
	}

	return reply, nil
}

// incrementFunctionDigit increments the function digit (the third
// character, index 2) of a 4-digit MTI by one: "0800" -> "0810",
// "0820" -> "0830".
func incrementFunctionDigit(mti string) (string, error) {
	if len(mti) != 4 {
		return "", fmt.Errorf("netmgmt: MTI must be 4 digits, got %q", mti)
	}
	digit := mti[2]
	if digit < '0' || digit > '9' {
		return "", fmt.Errorf("netmgmt: MTI function digit is not numeric: %q", mti)
	}
	next := '0' + (digit-'0'+1)%10
	return mti[:2] + string(next) + mti[3:], nil
}
