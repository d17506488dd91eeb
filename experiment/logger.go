package experiment

import "github.com/sirupsen/logrus"

var log = logrus.WithField("module", "experiment")
