package command

import (
	"github.com/juju/errors"

	"github.com/qiuwenhuifx/pgbackrest/internal/errs"
)

func errNotSet(option string) error {
	return errs.NewUserReported(errs.CodeUserReported, errors.Errorf("option %q must be set", option))
}
