package adapter

import (
	"errors"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	kit "postbot/internal/transport"
)

// classifyErr maps a telebot error onto a transport.DeliveryError. Context
// errors pass through unchanged. Unrecognized errors stay unclassified.
func classifyErr(err error) error {
	if err == nil || kit.IsContextDone(err) {
		return err
	}
	var de *kit.DeliveryError
	if errors.As(err, &de) {
		return err
	}

	var flood tele.FloodError
	if errors.As(err, &flood) {
		return kit.Classify(kit.FailureRateLimited, time.Duration(flood.RetryAfter)*time.Second, err)
	}
	var floodPtr *tele.FloodError
	if errors.As(err, &floodPtr) && floodPtr != nil {
		return kit.Classify(kit.FailureRateLimited, time.Duration(floodPtr.RetryAfter)*time.Second, err)
	}

	var apiErr *tele.Error
	if errors.As(err, &apiErr) && apiErr != nil {
		if kind, ok := kindForCode(apiErr.Code, apiErr.Description); ok {
			return kit.Classify(kind, 0, err)
		}
		return err
	}

	// Descriptions telebot does not know come back as "telegram: <desc> (<code>)".
	if code, desc, ok := parseAPIText(err.Error()); ok {
		if kind, ok := kindForCode(code, desc); ok {
			return kit.Classify(kind, 0, err)
		}
		return err
	}

	var ue *url.Error
	var ne net.Error
	if errors.As(err, &ue) || errors.As(err, &ne) {
		return kit.Classify(kit.FailureNetwork, 0, err)
	}
	return err
}

func kindForCode(code int, desc string) (kit.FailureKind, bool) {
	switch {
	case code == 403:
		return kit.FailureForbidden, true
	case code == 400 && strings.Contains(strings.ToLower(desc), "not found"):
		return kit.FailureNotFound, true
	case code == 400:
		return kit.FailureBadRequest, true
	case code == 429:
		return kit.FailureRateLimited, true
	case code >= 500 && code < 600:
		return kit.FailureNetwork, true
	}
	return kit.FailureUnknown, false
}

func parseAPIText(s string) (int, string, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "telegram: ") || !strings.HasSuffix(s, ")") {
		return 0, "", false
	}
	open := strings.LastIndex(s, "(")
	if open < 0 {
		return 0, "", false
	}
	code, err := strconv.Atoi(s[open+1 : len(s)-1])
	if err != nil {
		return 0, "", false
	}
	return code, strings.TrimSpace(s[len("telegram: "):open]), true
}
