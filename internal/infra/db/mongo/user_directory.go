package mongo

import (
	"context"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainuser "socialnet/internal/domain/user"
)

// UserDirectory reads display attributes from the accounts collection owned
// by the profile service. It never writes.
type UserDirectory struct {
	col *mongo.Collection
}

func NewUserDirectory(db *mongo.Database) *UserDirectory {
	return &UserDirectory{col: db.Collection("users")}
}

func (d *UserDirectory) ResolveDisplay(ctx context.Context, id domainuser.ID) (domainuser.Profile, error) {
	raw := strings.TrimSpace(string(id))
	if raw == "" {
		return domainuser.Profile{}, domainuser.ErrNotFound
	}
	var doc userDocument
	err := d.col.FindOne(ctx, userFilter(raw), options.FindOne().SetProjection(bson.M{"name": 1, "profilePic": 1})).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domainuser.Profile{}, domainuser.ErrNotFound
		}
		return domainuser.Profile{}, err
	}
	return domainuser.Profile{ID: domainuser.ID(raw), Name: doc.Name, AvatarRef: doc.ProfilePic}, nil
}

// userFilter matches ObjectID keys written by the accounts service as well as plain string ids.
func userFilter(raw string) bson.M {
	if oid, err := primitive.ObjectIDFromHex(raw); err == nil {
		return bson.M{"_id": bson.M{"$in": bson.A{oid, raw}}}
	}
	return bson.M{"_id": raw}
}

type userDocument struct {
	Name       string `bson:"name"`
	ProfilePic string `bson:"profilePic"`
}

var _ domainuser.Directory = (*UserDirectory)(nil)
