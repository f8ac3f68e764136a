package protocol

import "errors"

var ErrUnencodable = errors.New("protocol: envelope payload not encodable")
