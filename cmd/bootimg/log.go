package main

import (
	"github.com/sirupsen/logrus"

	bootimg "github.com/squidonik/DualBootPatcher"
)

func logFields(e bootimg.Entry) logrus.Fields {
	return logrus.Fields{
		"type":   e.Type.String(),
		"offset": e.Offset,
		"size":   e.Size,
	}
}
