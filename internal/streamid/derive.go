package streamid

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/crypto/sha3"
)

// defaultChannelSuffix marks the default channel of a space.
var defaultChannelSuffix = strings.Repeat("0", ChannelSuffixLength)

// SpaceID returns the stream id of the space deployed at address.
func SpaceID(address string) (ID, error) {
	return Make(PrefixSpace, address)
}

// UserStreamID returns the user stream of a wallet address.
func UserStreamID(address string) (ID, error) { return Make(PrefixUser, address) }

// UserMetadataStreamID returns the device-key stream of a wallet address.
func UserMetadataStreamID(address string) (ID, error) { return Make(PrefixUserMetadata, address) }

// UserInboxStreamID returns the to-device inbox stream of a wallet address.
func UserInboxStreamID(address string) (ID, error) { return Make(PrefixUserInbox, address) }

// UserSettingsStreamID returns the settings stream of a wallet address.
func UserSettingsStreamID(address string) (ID, error) { return Make(PrefixUserSettings, address) }

// DefaultChannelID returns the id of the channel created with the space.
func DefaultChannelID(space ID) (ID, error) {
	if !IsSpace(space) {
		return "", fmt.Errorf("%w: %s is not a space id", ErrInvalidStreamIdParts, space)
	}
	return Make(PrefixChannel, space.Identity()+defaultChannelSuffix)
}

// UniqueChannelID returns a fresh random channel id inside space.
func UniqueChannelID(space ID) (ID, error) {
	if !IsSpace(space) {
		return "", fmt.Errorf("%w: %s is not a space id", ErrInvalidStreamIdParts, space)
	}
	for {
		suffix := randomHex(ChannelSuffixLength)
		if suffix != defaultChannelSuffix {
			return Make(PrefixChannel, space.Identity()+suffix)
		}
	}
}

// IsDefaultChannel reports whether a channel id carries the default suffix.
func IsDefaultChannel(id ID) bool {
	if !IsChannel(id) || len(id) != StringLength {
		return false
	}
	return string(id[2+AddressIdentityLength:]) == defaultChannelSuffix
}

// SpaceFromChannel returns the space a channel id was derived from.
func SpaceFromChannel(channel ID) (ID, error) {
	if !IsChannel(channel) || len(channel) != StringLength {
		return "", fmt.Errorf("%w: %s is not a channel id", ErrInvalidStreamIdParts, channel)
	}
	return Make(PrefixSpace, string(channel[2:2+AddressIdentityLength]))
}

// DMStreamID derives the DM stream shared by two users. The result does not
// depend on argument order.
func DMStreamID(userA, userB string) (ID, error) {
	ids := []string{
		strings.ToLower(strings.TrimPrefix(userA, "0x")),
		strings.ToLower(strings.TrimPrefix(userB, "0x")),
	}
	sort.Strings(ids)
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(strings.Join(ids, "_")))
	sum := hex.EncodeToString(h.Sum(nil))
	return Make(PrefixDM, sum[:PaddedIdentityLength])
}

// GDMStreamID returns a random group DM id.
func GDMStreamID() ID {
	return MustMake(PrefixGDM, randomHex(PaddedIdentityLength))
}

// MediaStreamID returns a random media id.
func MediaStreamID() ID {
	return MustMake(PrefixMedia, randomHex(PaddedIdentityLength))
}

// MetadataStreamID returns the generic metadata stream of a shard.
func MetadataStreamID(shard uint64) ID {
	return MustMake(PrefixGenericMetadata, fmt.Sprintf("%014x", shard))
}

// AddressFromUserStream returns the wallet address bytes embedded in a
// user-family stream id.
func AddressFromUserStream(id ID) ([]byte, error) {
	if !IsUserFamily(id) {
		return nil, fmt.Errorf("%w: %s is not a user stream", ErrInvalidStreamIdParts, id)
	}
	return hex.DecodeString(id.Identity())
}

func IsSpace(id ID) bool           { return id.Prefix() == PrefixSpace }
func IsChannel(id ID) bool         { return id.Prefix() == PrefixChannel }
func IsDM(id ID) bool              { return id.Prefix() == PrefixDM }
func IsGDM(id ID) bool             { return id.Prefix() == PrefixGDM }
func IsMedia(id ID) bool           { return id.Prefix() == PrefixMedia }
func IsUser(id ID) bool            { return id.Prefix() == PrefixUser }
func IsUserMetadata(id ID) bool    { return id.Prefix() == PrefixUserMetadata }
func IsUserInbox(id ID) bool       { return id.Prefix() == PrefixUserInbox }
func IsUserSettings(id ID) bool    { return id.Prefix() == PrefixUserSettings }
func IsGenericMetadata(id ID) bool { return id.Prefix() == PrefixGenericMetadata }

// IsUserFamily reports whether id is one of the four per-user streams.
func IsUserFamily(id ID) bool {
	switch id.Prefix() {
	case PrefixUser, PrefixUserMetadata, PrefixUserInbox, PrefixUserSettings:
		return true
	}
	return false
}

// IsMultiParty reports whether the stream kind tracks a joined member list
// filled by membership events.
func IsMultiParty(id ID) bool {
	switch id.Prefix() {
	case PrefixSpace, PrefixChannel, PrefixGDM:
		return true
	}
	return false
}
