/*

Package lorawan provides tools to read and write LoRaWAN 1.0 Class A
messages: the PHYPayload framing, the join-request / join-accept
handshake and the data up/downlink MAC payload, including the
AES-CTR-like FRMPayload encryption and the AES-CMAC message integrity
code.

It implements the encoding.BinaryMarshaler and encoding.BinaryUnmarshaler
interfaces on the header and payload types and on AES128Key, EUI64,
DevAddr and DevNonce. AppNonce, NetID and MIC are plain byte arrays
without those methods.

*/
package lorawan
